package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/internal/retry"
	"github.com/manash/image-gen/pkg/models"
)

// Client dispatches requests to the provider registered for the model's
// family and retries transient failures.
type Client struct {
	factory  *Factory
	policy   retry.Policy
	sleep    retry.Sleeper
	retryOut io.Writer
	logger   *slog.Logger
}

type ClientOption func(*Client)

func WithSleep(s retry.Sleeper) ClientOption {
	return func(c *Client) { c.sleep = s }
}

// WithRetryOutput sets where retry notices are printed.
func WithRetryOutput(w io.Writer) ClientOption {
	return func(c *Client) { c.retryOut = w }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func NewClient(factory *Factory, policy retry.Policy, opts ...ClientOption) *Client {
	c := &Client{
		factory:  factory,
		policy:   policy,
		sleep:    retry.Sleep,
		retryOut: io.Discard,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs req against its family's provider. Failures come back as
// *apperr.Error; transient ones that outlive every attempt are KindNetwork.
func (c *Client) Execute(ctx context.Context, req *models.Request) (*models.Response, error) {
	op := string(req.Mode)
	if req.Model == nil || req.Params == nil {
		return nil, apperr.New(apperr.KindValidation, op, models.ErrUnknownModel)
	}
	if req.Params.Family() != req.Model.Family {
		return nil, apperr.New(apperr.KindValidation, op, models.ErrParamsMismatch)
	}

	p, err := c.factory.Get(req.Model.Family)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, op, err)
	}

	c.logger.Debug("dispatching request",
		"provider", p.Name(),
		"model", req.Model.ID,
		"mode", req.Mode,
		"inputs", len(req.Inputs))

	var resp *models.Response
	call := func(ctx context.Context) error {
		var err error
		if req.Mode == models.ModeEdit {
			resp, err = p.Edit(ctx, req)
		} else {
			resp, err = p.Generate(ctx, req)
		}
		if err == nil && (resp == nil || len(resp.Images) == 0) {
			err = ErrNoImage
		}
		return err
	}

	started := time.Now()
	err = retry.Do(ctx, c.policy, call,
		retry.WithClassifier(IsTransient),
		retry.WithSleep(c.sleep),
		retry.WithOnRetry(func(a retry.Attempt) {
			c.logger.Debug("transient failure", "attempt", a.Number, "delay", a.Delay, "error", a.Err)
			fmt.Fprintf(c.retryOut, "  Retry %d/%d after %gs: %v\n", a.Number, a.Max, a.Delay.Seconds(), a.Err)
		}),
	)
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, apperr.New(apperr.KindNetwork, op, err)
		}
		kind := Classify(err)
		if kind == apperr.KindUnknown || kind == apperr.KindTransient {
			kind = apperr.KindAPI
		}
		if errors.Is(err, context.Canceled) {
			kind = apperr.KindUnknown
		}
		return nil, apperr.New(kind, op, err)
	}

	c.logger.Debug("request complete", "provider", p.Name(), "images", len(resp.Images), "elapsed", time.Since(started))
	return resp, nil
}
