package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/doorman/doorman/pkg/config"
	"github.com/doorman/doorman/pkg/metrics"
	"github.com/doorman/doorman/pkg/model"
)

const (
	endpointNewGame = "new-game"
	endpointDecide  = "decide-and-next"
)

var (
	// ErrProtocol marks responses the service should never send.
	ErrProtocol = errors.New("admission service protocol error")
	// ErrUnavailable is returned once transient failures exhaust the retry budget.
	ErrUnavailable = errors.New("admission service unavailable")
)

// Client talks to the remote admission service over HTTP.
type Client struct {
	baseURL       string
	playerID      string
	httpClient    *http.Client
	limiter       *rate.Limiter
	maxRetries    uint
	maxElapsed    time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

func NewClient(cfg config.GameConfig, logger *zap.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 250 * time.Millisecond
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		playerID:      cfg.PlayerID,
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(limit, 1),
		maxRetries:    cfg.MaxRetries,
		maxElapsed:    cfg.MaxElapsed,
		retryInterval: retryInterval,
		logger:        logger,
	}
}

func (c *Client) StartSession(ctx context.Context, scenario int) (*model.Session, error) {
	params := url.Values{}
	params.Set("scenario", strconv.Itoa(scenario))
	params.Set("playerId", c.playerID)

	var resp newGameResponse
	if err := c.get(ctx, endpointNewGame, params, &resp); err != nil {
		return nil, err
	}
	if resp.GameID == "" {
		return nil, fmt.Errorf("%w: new game response without gameId", ErrProtocol)
	}

	return &model.Session{
		ID:          resp.GameID,
		Scenario:    scenario,
		Constraints: model.ConstraintSet(resp.Constraints),
		Statistics:  resp.AttributeStatistics,
	}, nil
}

// NextApplicant acknowledges prev (nil on the first call) and fetches the next
// applicant.
func (c *Client) NextApplicant(ctx context.Context, sessionID string, prev *model.Verdict) (*model.Turn, error) {
	params := url.Values{}
	params.Set("gameId", sessionID)
	if prev == nil {
		params.Set("personIndex", "0")
	} else {
		params.Set("personIndex", strconv.Itoa(prev.Index))
		params.Set("accept", strconv.FormatBool(prev.Decision.Accepted()))
	}

	var resp decideResponse
	if err := c.get(ctx, endpointDecide, params, &resp); err != nil {
		return nil, err
	}

	turn := resp.turn()
	switch turn.Status {
	case model.TurnRunning:
		if turn.Applicant == nil {
			return nil, fmt.Errorf("%w: running session without nextPerson", ErrProtocol)
		}
	case model.TurnCompleted, model.TurnFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrProtocol, resp.Status)
	}
	return turn, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	target := c.baseURL + "/" + endpoint + "?" + params.Encode()

	operation := func() (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, c.do(ctx, endpoint, target, out)
	}

	notify := func(err error, wait time.Duration) {
		metrics.GatewayRetries.WithLabelValues(endpoint).Inc()
		c.logger.Warn("retrying admission service request",
			zap.String("endpoint", endpoint),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithNotify(notify),
		backoff.WithMaxTries(c.maxRetries + 1),
	}
	if c.maxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.maxElapsed))
	}

	_, err := backoff.Retry(ctx, operation, opts...)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProtocol) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	return fmt.Errorf("%s: %w: %v", endpoint, ErrUnavailable, err)
}

func (c *Client) do(ctx context.Context, endpoint, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GatewayRequestDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer resp.Body.Close()
	metrics.GatewayRequestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if seconds, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && seconds > 0 {
			return backoff.RetryAfter(seconds)
		}
		return fmt.Errorf("%s returned %d", endpoint, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return backoff.Permanent(fmt.Errorf("%w: %s returned %d: %s", ErrProtocol, endpoint, resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: decode %s response: %v", ErrProtocol, endpoint, err))
	}
	return nil
}
