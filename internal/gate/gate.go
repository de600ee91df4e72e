package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

// Prometheus-метрики решений об отображении.
var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mg_gate_decisions_total",
		Help: "Количество решений об отображении медиа (по результату и виду тела).",
	}, []string{"result", "kind"})

	droppedResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mg_gate_dropped_results_total",
		Help: "Результаты проверок, пришедшие после закрытия отображения.",
	})
)

// Scannable — медиа, для которого можно запросить обе проверки.
// Реализуется *media.Media.
type Scannable interface {
	ScanSource(ctx context.Context) (bool, error)
	ScanThumbnail(ctx context.Context) (bool, error)
}

// Gate — отображение одного элемента, ожидающее результатов проверки.
// Каждый Gate владеет своим состоянием; общего изменяемого состояния нет.
type Gate struct {
	mu     sync.Mutex
	state  State
	kind   Kind
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// Start создаёт отображение в состоянии scanning и одновременно запускает
// проверку источника и миниатюры.
func Start(ctx context.Context, m Scannable, kind Kind, logger *slog.Logger) *Gate {
	ctx, cancel := context.WithCancel(ctx)
	g := &Gate{
		state:  InitialState(),
		kind:   kind,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.With(slog.String("component", "gate"), slog.String("kind", string(kind))),
	}

	go g.run(ctx, m)

	return g
}

// run выполняет обе проверки и применяет результат после завершения обеих.
func (g *Gate) run(ctx context.Context, m Scannable) {
	defer close(g.done)
	defer g.cancel()

	var srcOK, thumbOK bool
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ok, err := m.ScanSource(egCtx)
		if err != nil {
			return fmt.Errorf("проверка источника: %w", err)
		}
		srcOK = ok
		return nil
	})
	eg.Go(func() error {
		ok, err := m.ScanThumbnail(egCtx)
		if err != nil {
			return fmt.Errorf("проверка миниатюры: %w", err)
		}
		thumbOK = ok
		return nil
	})

	err := eg.Wait()
	g.settle(err == nil && srcOK && thumbOK, err)
}

// settle переводит состояние в конечную фазу.
// После Close результат отбрасывается.
func (g *Gate) settle(safe bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		droppedResultsTotal.Inc()
		g.logger.Debug("Результат проверки отброшен: отображение закрыто")
		return
	}

	next := State{Safe: safe, Err: err}
	if !CanTransition(g.state.Phase(), next.Phase()) {
		g.logger.Error("Недопустимый переход состояния",
			slog.String("error", (&TransitionError{From: g.state.Phase(), To: next.Phase()}).Error()),
		)
		return
	}
	g.state = next

	result := string(next.Phase())
	if err != nil {
		result = "error"
		g.logger.Warn("Проверка медиа завершилась ошибкой, медиа скрыто",
			slog.String("error", err.Error()),
		)
	}
	decisionsTotal.WithLabelValues(result, string(g.kind)).Inc()
}

// State возвращает текущее состояние.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// View возвращает текущее решение об отображении.
func (g *Gate) View() View {
	return Decide(g.State(), g.kind)
}

// Done закрывается, когда обе проверки завершены (или прерваны).
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait ожидает завершения проверок или отмены ctx.
// При отмене ctx возвращает текущее состояние и ошибку контекста;
// сами проверки при этом продолжаются.
func (g *Gate) Wait(ctx context.Context) (State, error) {
	select {
	case <-g.done:
		return g.State(), nil
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}

// Close прекращает отображение: незавершённые проверки отменяются,
// последующие результаты игнорируются. Повторный вызов безопасен.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
}
