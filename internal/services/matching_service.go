package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/khayashi/engawa/internal/clock"
	"github.com/khayashi/engawa/internal/models"
)

// MatchRepository defines the persistence operations the pairing engine needs
type MatchRepository interface {
	// ListParticipants returns the user IDs currently opted in to tea time.
	ListParticipants(ctx context.Context) ([]string, error)
	// ListRecentMatches returns matches created at or after since.
	ListRecentMatches(ctx context.Context, since time.Time) ([]models.TeaTimeMatch, error)
	// InsertMatches persists all matches in one transaction, or none of them.
	InsertMatches(ctx context.Context, matches []models.TeaTimeMatch) error
}

// MatchNotifier delivers a best-effort notification for one created match.
type MatchNotifier interface {
	NotifyMatch(ctx context.Context, match models.TeaTimeMatch) error
}

// Rand is the randomness source for shuffling and weighted selection,
// injected so tests can seed it. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// MatchingConfig holds configuration for the tea time pairing engine
type MatchingConfig struct {
	// HistoryWindow is how far back repeat pairings are counted against a
	// candidate.
	HistoryWindow time.Duration
	// NotifyTimeout bounds each notification delivery.
	NotifyTimeout time.Duration
}

// DefaultMatchingConfig returns the production pairing settings: avoid
// partners matched within the trailing 30 days.
func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		HistoryWindow: 30 * 24 * time.Hour,
		NotifyTimeout: 10 * time.Second,
	}
}

// MatchingService pairs opted-in residents for tea time, biased away from
// recently repeated pairings. A run is a single-shot computation over a
// snapshot of participants and history; the engine keeps no state between
// runs. It is a greedy randomized heuristic, not a maximum-weight matching —
// good enough for a social feature, cheap enough to run on a cron tick.
type MatchingService struct {
	repo     MatchRepository
	notifier MatchNotifier
	rng      Rand
	clk      clock.Clock
	config   MatchingConfig
	logger   *slog.Logger
}

// NewMatchingService creates a new MatchingService. notifier may be nil when
// no notification channel is configured.
func NewMatchingService(repo MatchRepository, notifier MatchNotifier, rng Rand, clk clock.Clock, config MatchingConfig, logger *slog.Logger) *MatchingService {
	return &MatchingService{
		repo:     repo,
		notifier: notifier,
		rng:      rng,
		clk:      clk,
		config:   config,
		logger:   logger,
	}
}

// Run executes one matching run and returns the number of pairs created.
// Every failure mode — too few participants, history unavailable, insert
// failure — yields zero; the next scheduled run retries naturally.
func (s *MatchingService) Run(ctx context.Context) int {
	participants, err := s.repo.ListParticipants(ctx)
	if err != nil {
		s.logger.Error("failed to list tea time participants", slog.Any("error", err))
		return 0
	}
	if len(participants) < 2 {
		s.logger.Info("not enough tea time participants", slog.Int("count", len(participants)))
		return 0
	}

	now := s.clk.Now()
	since := now.Add(-s.config.HistoryWindow)

	recent, err := s.repo.ListRecentMatches(ctx, since)
	if err != nil {
		// Pairing still works without history, it just loses the repeat bias.
		s.logger.Warn("failed to load recent match history", slog.Any("error", err))
		recent = nil
	}

	pairs := s.createPairs(participants, recent)
	if len(pairs) == 0 {
		return 0
	}

	matches := make([]models.TeaTimeMatch, 0, len(pairs))
	for _, pair := range pairs {
		matches = append(matches, models.TeaTimeMatch{
			ID:        uuid.New().String(),
			User1ID:   pair[0],
			User2ID:   pair[1],
			MatchedAt: now,
			Status:    models.MatchStatusScheduled,
		})
	}

	// All-or-nothing: a failed insert reports zero pairs created.
	if err := s.repo.InsertMatches(ctx, matches); err != nil {
		s.logger.Error("failed to persist tea time matches", slog.Any("error", err))
		return 0
	}

	s.logger.Info("tea time matching completed",
		slog.Int("participants", len(participants)),
		slog.Int("matches", len(matches)))

	if s.notifier != nil {
		go s.notifyMatches(context.WithoutCancel(ctx), matches)
	}

	return len(matches)
}

// createPairs partitions participants into disjoint pairs. Candidates the
// participant never met in the history window weigh 10, one prior meeting
// weighs 5, two or more weigh 1 — never zero, so the walk always terminates
// even when everyone has already met everyone.
func (s *MatchingService) createPairs(userIDs []string, recent []models.TeaTimeMatch) [][2]string {
	pairCount := make(map[string]int, len(recent))
	for _, match := range recent {
		pairCount[pairKey(match.User1ID, match.User2ID)]++
	}

	shuffled := make([]string, len(userIDs))
	copy(shuffled, userIDs)
	s.shuffle(shuffled)

	var pairs [][2]string
	matched := make(map[string]bool, len(shuffled))

	for _, userID := range shuffled {
		if matched[userID] {
			continue
		}

		var candidates []string
		for _, other := range shuffled {
			if other != userID && !matched[other] {
				candidates = append(candidates, other)
			}
		}
		if len(candidates) == 0 {
			break
		}

		partner := s.selectPartner(userID, candidates, pairCount)
		pairs = append(pairs, [2]string{userID, partner})
		matched[userID] = true
		matched[partner] = true
	}

	return pairs
}

// shuffle is an unbiased Fisher-Yates shuffle.
func (s *MatchingService) shuffle(ids []string) {
	for i := len(ids) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// selectPartner draws one candidate with probability proportional to its
// weight, via cumulative-weight subtraction against a uniform draw.
func (s *MatchingService) selectPartner(userID string, candidates []string, pairCount map[string]int) string {
	weights := make([]int, len(candidates))
	total := 0
	for i, candidate := range candidates {
		weights[i] = pairWeight(pairCount[pairKey(userID, candidate)])
		total += weights[i]
	}

	draw := s.rng.Float64() * float64(total)
	for i, weight := range weights {
		draw -= float64(weight)
		if draw <= 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

func pairWeight(matchCount int) int {
	switch {
	case matchCount == 0:
		return 10
	case matchCount == 1:
		return 5
	default:
		return 1
	}
}

// pairKey builds an order-independent key so (A,B) and (B,A) collide.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}

func (s *MatchingService) notifyMatches(ctx context.Context, matches []models.TeaTimeMatch) {
	for _, match := range matches {
		notifyCtx, cancel := context.WithTimeout(ctx, s.config.NotifyTimeout)
		err := s.notifier.NotifyMatch(notifyCtx, match)
		cancel()

		// One failed notification must not abort the batch.
		if err != nil {
			s.logger.Error("failed to notify tea time match",
				slog.String("match_id", match.ID),
				slog.Any("error", err))
		}
	}
}
