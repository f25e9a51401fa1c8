// Package service links aggregator items to users and summarizes their accounts.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"canny/backend/internal/aggregator"
	"canny/backend/internal/aggregator/domain"
	"canny/backend/internal/logging"
)

// summaryConcurrency caps concurrent account fetches per summary.
const summaryConcurrency = 4

// ValidationError reports bad client input. Message is safe to show to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Client is the aggregator API used by the service. Implemented by *aggregator.PlaidClient.
type Client interface {
	CreateLinkToken(ctx context.Context, userID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*aggregator.ExchangeResult, error)
	GetAccounts(ctx context.Context, accessToken string) ([]domain.Account, error)
}

// ItemRepo stores linked items.
type ItemRepo interface {
	Save(ctx context.Context, item *domain.Item) error
	ListByUser(ctx context.Context, userID string) ([]*domain.Item, error)
}

// Service implements the aggregator operations for an authenticated user.
type Service struct {
	client       Client
	items        ItemRepo
	log          logging.Logger
	storeTimeout time.Duration
}

// New returns a Service. log may be nil.
func New(client Client, items ItemRepo, log logging.Logger, storeTimeout time.Duration) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{client: client, items: items, log: log, storeTimeout: storeTimeout}
}

// LinkToken creates a link token for userID.
func (s *Service) LinkToken(ctx context.Context, userID string) (string, error) {
	tok, err := s.client.CreateLinkToken(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create link token: %w", err)
	}
	return tok, nil
}

// Exchange trades publicToken for an item access token and stores it for userID.
func (s *Service) Exchange(ctx context.Context, userID, publicToken string) (*aggregator.ExchangeResult, error) {
	publicToken = strings.TrimSpace(publicToken)
	if publicToken == "" {
		return nil, &ValidationError{Message: "plaid-public-token header is required"}
	}
	res, err := s.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, fmt.Errorf("exchange public token: %w", err)
	}
	item := &domain.Item{
		ID:          uuid.New().String(),
		UserID:      userID,
		ItemID:      res.ItemID,
		AccessToken: res.AccessToken,
		CreatedAt:   time.Now().UTC(),
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.items.Save(storeCtx, item); err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}
	s.log.Info(ctx, "aggregator item linked", "user_id", userID, "item_id", res.ItemID)
	return res, nil
}

// ListAccessTokens returns the access tokens of the user's items, oldest first.
func (s *Service) ListAccessTokens(ctx context.Context, userID string) ([]string, error) {
	items, err := s.listItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.AccessToken)
	}
	return out, nil
}

// AccountSummary fetches the accounts behind accessTokens and groups them by type.
// Every token must belong to userID. No tokens means all of the user's items.
func (s *Service) AccountSummary(ctx context.Context, userID string, accessTokens []string) (map[string][]domain.Account, error) {
	owned, err := s.ListAccessTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(accessTokens) == 0 {
		accessTokens = owned
	} else {
		mine := make(map[string]bool, len(owned))
		for _, t := range owned {
			mine[t] = true
		}
		for _, t := range accessTokens {
			if !mine[t] {
				return nil, &ValidationError{Message: "unknown access token"}
			}
		}
	}

	perToken := make([][]domain.Account, len(accessTokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, tok := range accessTokens {
		g.Go(func() error {
			accounts, err := s.client.GetAccounts(gctx, tok)
			if err != nil {
				return fmt.Errorf("get accounts: %w", err)
			}
			perToken[i] = accounts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.Account
	for _, accounts := range perToken {
		all = append(all, accounts...)
	}
	return domain.GroupByType(all), nil
}

func (s *Service) listItems(ctx context.Context, userID string) ([]*domain.Item, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	items, err := s.items.ListByUser(storeCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
