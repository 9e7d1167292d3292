package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/accstore/accstore/config"
	"github.com/accstore/accstore/internal/domain"
)

// GatewaySession is the hosted-page session opened at the provider.
type GatewaySession struct {
	Ref         string `json:"ref"`
	RedirectURL string `json:"redirect_url"`
}

// GatewayResult is the provider's answer to a verification call.
type GatewayResult struct {
	Ref         string `mapstructure:"ref" json:"ref"`
	Status      string `mapstructure:"status" json:"status"` // paid/pending/failed
	AmountCents int64  `mapstructure:"amount_cents" json:"amount_cents"`
}

// Paid reports whether the provider settled the session.
func (r *GatewayResult) Paid() bool {
	return strings.EqualFold(r.Status, "paid")
}

// GatewayClient talks to the external payment providers.
type GatewayClient interface {
	// CreateSession opens a hosted payment page and returns its reference
	// and redirect URL.
	CreateSession(ctx context.Context, gateway string, amountCents int64, key string) (*GatewaySession, error)

	// VerifySession asks the provider for the final state of a session.
	VerifySession(ctx context.Context, gateway, ref string) (*GatewayResult, error)
}

// HTTPGatewayClient implements GatewayClient against the configured card and
// crypto provider endpoints.
type HTTPGatewayClient struct {
	cfg     config.GatewayConfig
	timeout time.Duration
}

func NewHTTPGatewayClient(cfg config.GatewayConfig) *HTTPGatewayClient {
	return &HTTPGatewayClient{cfg: cfg, timeout: 10 * time.Second}
}

func (c *HTTPGatewayClient) baseURL(gateway string) (string, error) {
	switch gateway {
	case domain.PayMethodCard:
		return c.cfg.CardURL, nil
	case domain.PayMethodCrypto:
		return c.cfg.CryptoURL, nil
	default:
		return "", errors.Errorf("unknown gateway %q", gateway)
	}
}

func (c *HTTPGatewayClient) CreateSession(ctx context.Context, gateway string, amountCents int64, key string) (*GatewaySession, error) {
	base, err := c.baseURL(gateway)
	if err != nil {
		return nil, err
	}

	var session GatewaySession
	err = gout.POST(base+"/sessions").
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(gout.H{"Authorization": "Bearer " + c.cfg.ApiKey}).
		SetJSON(gout.H{
			"amount_cents": amountCents,
			"currency":     "USD",
			"client_ref":   key,
			"return_url":   fmt.Sprintf("%s?key=%s", c.cfg.ReturnURL, key),
		}).
		BindJSON(&session).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "gateway create session")
	}
	if session.Ref == "" || session.RedirectURL == "" {
		return nil, errors.New("gateway returned an incomplete session")
	}
	return &session, nil
}

func (c *HTTPGatewayClient) VerifySession(ctx context.Context, gateway, ref string) (*GatewayResult, error) {
	base, err := c.baseURL(gateway)
	if err != nil {
		return nil, err
	}

	// Providers differ slightly in their response envelopes; decode the raw
	// body into the common shape.
	var raw map[string]interface{}
	err = gout.GET(base+"/sessions/"+ref).
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(gout.H{"Authorization": "Bearer " + c.cfg.ApiKey}).
		BindJSON(&raw).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "gateway verify session")
	}

	var result GatewayResult
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &result,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "gateway verify decode")
	}
	if result.Ref == "" {
		result.Ref = ref
	}
	return &result, nil
}
