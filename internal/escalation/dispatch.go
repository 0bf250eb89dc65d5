package escalation

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #endregion imports

// #region phone
var e164 = regexp.MustCompile(`^\+[0-9]{8,15}$`)

// NormalizePhone trims surrounding space and checks E.164: a leading "+"
// followed by 8 to 15 digits and nothing else.
func NormalizePhone(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if !e164.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return p, nil
}

// #endregion phone

// #region call-context
// CallContext is the payload handed to the voice provider.
type CallContext struct {
	LeadID    string            `json:"leadId"`
	LeadName  string            `json:"leadName"`
	Goal      string            `json:"goal"`
	Objection policy.Objection  `json:"objection"`
	Sentiment policy.Sentiment  `json:"sentiment"`
	Strategy  policy.StrategyID `json:"strategy"`
	Score     float64           `json:"score"`
	Channel   policy.Channel    `json:"channel"`
	Round     int               `json:"round"`
}

// NewCallContext assembles the payload for a lead's escalation.
func NewCallContext(lead policy.Lead, strategy policy.StrategyID, result policy.Evaluation, round int) CallContext {
	return CallContext{
		LeadID:    lead.ID,
		LeadName:  lead.Name,
		Goal:      lead.Goal,
		Objection: lead.Objection,
		Sentiment: lead.Sentiment,
		Strategy:  strategy,
		Score:     policy.Round2(result.Score),
		Channel:   lead.Channel,
		Round:     round,
	}
}

// Map flattens the payload into the provider's opaque metadata map.
func (c CallContext) Map() map[string]string {
	return map[string]string{
		"lead_id":   c.LeadID,
		"lead_name": c.LeadName,
		"goal":      c.Goal,
		"objection": string(c.Objection),
		"sentiment": string(c.Sentiment),
		"strategy":  string(c.Strategy),
		"score":     fmt.Sprintf("%.2f", c.Score),
		"channel":   string(c.Channel),
		"round":     fmt.Sprintf("%d", c.Round),
	}
}

// #endregion call-context

// #region dispatcher
// Dispatcher places an outbound voice call. Implementations never return an
// error: failures are reported through Result.
type Dispatcher interface {
	PlaceCall(ctx context.Context, phone string, call CallContext) Result
}

func invalidPhone(err error) Result {
	return Result{Accepted: false, Status: StatusInvalidPhone, Error: err.Error()}
}

// #endregion dispatcher

// #region dry-run
// DryRunDispatcher validates and logs calls without contacting a provider.
type DryRunDispatcher struct {
	logger *zap.Logger
}

// NewDryRunDispatcher creates a dispatcher that only logs.
func NewDryRunDispatcher(logger *zap.Logger) *DryRunDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunDispatcher{logger: logger.Named("escalate")}
}

// PlaceCall validates the number and reports a simulated acceptance.
func (d *DryRunDispatcher) PlaceCall(_ context.Context, phone string, call CallContext) Result {
	p, err := NormalizePhone(phone)
	if err != nil {
		return invalidPhone(err)
	}
	d.logger.Info("dry-run voice call",
		zap.String("to", p),
		zap.String("lead", call.LeadID),
		zap.String("strategy", string(call.Strategy)),
		zap.Int("round", call.Round))
	return Result{Accepted: true, Status: StatusDryRun}
}

// #endregion dry-run

// #region http
// HTTPConfig configures the REST voice provider.
type HTTPConfig struct {
	Endpoint   string
	APIKey     string
	FromNumber string
	Timeout    time.Duration
}

// HTTPDispatcher posts call requests to a voice provider's REST endpoint.
type HTTPDispatcher struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPDispatcher creates a REST dispatcher.
func NewHTTPDispatcher(config HTTPConfig) *HTTPDispatcher {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDispatcher{config: config, client: &http.Client{Timeout: timeout}}
}

type callRequest struct {
	To       string            `json:"to"`
	From     string            `json:"from,omitempty"`
	Metadata map[string]string `json:"metadata"`
}

type callResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// PlaceCall validates the number before any network I/O, then posts the request.
func (d *HTTPDispatcher) PlaceCall(ctx context.Context, phone string, call CallContext) Result {
	p, err := NormalizePhone(phone)
	if err != nil {
		return invalidPhone(err)
	}

	body, err := json.Marshal(callRequest{To: p, From: d.config.FromNumber, Metadata: call.Map()})
	if err != nil {
		return Result{Status: StatusFailed, Error: fmt.Sprintf("encode request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Status: StatusFailed, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if d.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Status: StatusFailed, Error: fmt.Sprintf("voice provider: %v", err)}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed callResponse
	decodeErr := readErr
	if decodeErr == nil {
		decodeErr = json.Unmarshal(raw, &parsed)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return Result{Status: StatusRejected, Error: fmt.Sprintf("voice provider %d: %s", resp.StatusCode, msg)}
	}

	// 2xx without a readable body: the provider took the request but the call
	// cannot be identified.
	if decodeErr != nil {
		return Result{Accepted: true, Status: StatusUnconfirmed, Error: fmt.Sprintf("decode provider response: %v", decodeErr)}
	}

	status := parsed.Status
	if status == "" {
		status = StatusQueued
	}
	return Result{Accepted: true, Status: status, CallID: parsed.ID}
}

// #endregion http
