// Package deploy builds a new swap pool: it deploys and wires the four pool
// contracts, records the pool's metadata, registers it and hands ownership to
// the requesting user. Nothing is rolled back on failure; deployed contracts
// stay on chain and are cleaned up out of band.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
	"voucherPools/internal/metrics"
	"voucherPools/internal/model"
)

const defaultNotifyTimeout = 10 * time.Second

// Request describes the pool to create.
type Request struct {
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    uint8    `json:"decimals"`
	Description string   `json:"description"`
	BannerURL   string   `json:"banner_url"`
	Tags        []string `json:"tags"`
	Owner       string   `json:"owner"`
}

// Deployment is the set of contracts one successful run produced.
type Deployment struct {
	RunID    string
	Pool     common.Address
	Registry common.Address
	Limiter  common.Address
	Quoter   common.Address
	Owner    common.Address
	Metadata model.PoolMetadata
}

// MetadataStore persists a pool's off-chain metadata in one transaction.
type MetadataStore interface {
	InsertPool(ctx context.Context, meta model.PoolMetadata) error
}

// Notifier announces a finished deployment.
type Notifier interface {
	PoolDeployed(ctx context.Context, d Deployment) error
}

type Options struct {
	PoolIndex     common.Address
	Policy        ledger.ReceiptPolicy
	Notifier      Notifier
	NotifyTimeout time.Duration
	// Checkpoints, when set, records progress so a failed run can Resume.
	Checkpoints *CheckpointStore
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Saga runs pool deployments. It holds no per-run state and may run several
// deployments concurrently, except with a checkpoint store, which tracks one.
type Saga struct {
	ledger        ledger.Writer
	artifacts     contracts.Artifacts
	abis          *contracts.Set
	store         MetadataStore
	notifier      Notifier
	poolIndex     common.Address
	policy        ledger.ReceiptPolicy
	notifyTimeout time.Duration
	checkpoints   *CheckpointStore
	metrics       *metrics.Metrics
	logger        *zap.Logger

	notifications sync.WaitGroup
}

func NewSaga(w ledger.Writer, artifacts contracts.Artifacts, store MetadataStore, opts Options) (*Saga, error) {
	if w == nil {
		return nil, errors.New("ledger writer is nil")
	}
	if store == nil {
		return nil, errors.New("metadata store is nil")
	}
	if opts.PoolIndex == (common.Address{}) {
		return nil, fmt.Errorf("%w: pool index is the zero address", model.ErrInvalidAddress)
	}
	abis, err := contracts.ABIs()
	if err != nil {
		return nil, fmt.Errorf("parse abis: %w", err)
	}
	if opts.Policy == (ledger.ReceiptPolicy{}) {
		opts.Policy = ledger.DefaultReceiptPolicy
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Saga{
		ledger:        w,
		artifacts:     artifacts,
		abis:          abis,
		store:         store,
		notifier:      opts.Notifier,
		poolIndex:     opts.PoolIndex,
		policy:        opts.Policy,
		notifyTimeout: opts.NotifyTimeout,
		checkpoints:   opts.Checkpoints,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}, nil
}

// Run executes every step in order, calling emit with a loading event before
// each step and exactly one terminal event at the end. It returns the new
// pool address, or a *model.StepError naming the step that failed.
func (s *Saga) Run(ctx context.Context, req Request, emit func(model.ProgressEvent)) (common.Address, error) {
	if emit == nil {
		emit = func(model.ProgressEvent) {}
	}
	st, err := s.prepare(req)
	if err != nil {
		s.logger.Warn("deploy rejected", zap.Error(err))
		s.metrics.Run("rejected")
		emit(model.ProgressEvent{Message: "Invalid deployment request", Status: model.StatusError, Error: err.Error()})
		return common.Address{}, err
	}
	st.deployment.RunID = uuid.NewString()
	return s.execute(ctx, st, emit)
}

// Resume continues the deployment recorded in the checkpoint store from the
// first step it had not completed.
func (s *Saga) Resume(ctx context.Context, emit func(model.ProgressEvent)) (common.Address, error) {
	if emit == nil {
		emit = func(model.ProgressEvent) {}
	}
	cp, ok, err := s.checkpoints.Load()
	if err == nil && !ok {
		err = errors.New("no deployment checkpoint to resume")
	}
	var st *state
	if err == nil {
		st, err = s.prepare(cp.Request)
	}
	if err != nil {
		s.metrics.Run("rejected")
		emit(model.ProgressEvent{Message: "Cannot resume deployment", Status: model.StatusError, Error: err.Error()})
		return common.Address{}, err
	}
	st.restore(cp)
	return s.execute(ctx, st, emit)
}

func (s *Saga) execute(ctx context.Context, st *state, emit func(model.ProgressEvent)) (common.Address, error) {
	log := s.logger.With(zap.String("run_id", st.deployment.RunID), zap.String("symbol", st.deployment.Metadata.Symbol))
	log.Info("deploy start", zap.String("owner", st.deployment.Owner.Hex()), zap.Int("resume_after", st.completed))
	st.save = func() {
		if err := s.checkpoints.Save(st.checkpoint()); err != nil {
			log.Warn("save deploy checkpoint", zap.Error(err))
		}
	}

	for i, step := range s.steps() {
		num := i + 1
		if num <= st.completed {
			continue
		}
		emit(model.ProgressEvent{Message: step.message, Status: model.StatusLoading})
		started := time.Now()
		if err := step.run(ctx, st); err != nil {
			stepErr := &model.StepError{Step: num, Name: step.name, Err: err}
			log.Error("deploy step failed",
				zap.Int("step", num),
				zap.String("name", step.name),
				zap.Bool("committed", stepErr.Committed()),
				zap.Error(err),
			)
			s.metrics.Step(step.name, "failed")
			s.metrics.Run("failed")
			emit(model.ProgressEvent{Message: step.message, Status: model.StatusError, Error: stepErr.Error()})
			return common.Address{}, stepErr
		}
		st.completed = num
		st.save()
		s.metrics.Step(step.name, "ok")
		log.Debug("deploy step done", zap.Int("step", num), zap.String("name", step.name), zap.Duration("elapsed", time.Since(started)))
	}

	if err := s.checkpoints.Clear(); err != nil {
		log.Warn("clear deploy checkpoint", zap.Error(err))
	}
	pool := st.deployment.Pool
	log.Info("deploy complete", zap.String("pool", pool.Hex()))
	s.metrics.Run("success")
	emit(model.ProgressEvent{Message: "Pool deployed", Status: model.StatusSuccess, Address: pool.Hex()})
	s.announce(ctx, st.deployment, log)
	return pool, nil
}

// Stream runs the saga in a goroutine and delivers its events on the returned
// channel, which is closed after the terminal event. A consumer that stops
// reading must cancel ctx; steps already submitted still complete.
func (s *Saga) Stream(ctx context.Context, req Request) <-chan model.ProgressEvent {
	events := make(chan model.ProgressEvent, 4)
	go func() {
		defer close(events)
		_, _ = s.Run(ctx, req, func(ev model.ProgressEvent) {
			deliver(ctx, events, ev)
		})
	}()
	return events
}

// deliver prefers a free buffer slot over ctx.Done, so events queued after
// cancellation, including the terminal one, still reach the consumer.
func deliver(ctx context.Context, events chan<- model.ProgressEvent, ev model.ProgressEvent) {
	select {
	case events <- ev:
		return
	default:
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// Wait blocks until background notifications have finished.
func (s *Saga) Wait() {
	s.notifications.Wait()
}

// announce sends the deployment notification without holding up the caller.
// Failures are logged and dropped.
func (s *Saga) announce(ctx context.Context, d Deployment, log *zap.Logger) {
	if s.notifier == nil {
		return
	}
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.PoolDeployed(nctx, d); err != nil {
			log.Warn("deploy notification failed", zap.Error(err))
			s.metrics.Notification("failed")
			return
		}
		s.metrics.Notification("sent")
	}()
}

func (s *Saga) prepare(req Request) (*state, error) {
	owner, err := model.ParseAddress(req.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner is the zero address", model.ErrInvalidAddress)
	}
	name := strings.TrimSpace(req.Name)
	symbol := strings.TrimSpace(req.Symbol)
	if name == "" || symbol == "" {
		return nil, errors.New("pool name and symbol are required")
	}
	if req.Decimals > 18 {
		return nil, fmt.Errorf("decimals %d out of range", req.Decimals)
	}
	return &state{
		req: req,
		deployment: Deployment{
			Owner: owner,
			Metadata: model.PoolMetadata{
				Name:        name,
				Symbol:      symbol,
				Description: req.Description,
				BannerURL:   req.BannerURL,
				Owner:       owner,
				Tags:        model.NormalizeTags(req.Tags),
			},
		},
	}, nil
}
