package services

import (
	"context"
	"errors"
	"field-service-router/internal/domain"
	"field-service-router/internal/mapview"
	"field-service-router/internal/platform/obs"
	"field-service-router/internal/ports"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const DefaultSelectionTimeout = 5 * time.Minute

var (
	ErrSessionRequired = errors.New("map session is required")
	ErrSlotNotOffered  = errors.New("selected slot was not offered")
	ErrSlotTaken       = errors.New("selected slot is no longer available")
)

type OrchestratorConfig struct {
	ClusterRadiusKm  float64
	SelectionTimeout time.Duration
	// Workers > 1 optimizes clusters concurrently before prompting. Prompts
	// and writes are always sequential.
	Workers  int
	Location *time.Location
	Defaults domain.ServiceDefaults
}

// OrchestratorDeps are the collaborators of a planning run. Locker and
// Geocoder are optional.
type OrchestratorDeps struct {
	Repo         ports.AppointmentRepository
	Availability ports.AvailabilityProvider
	Clusterer    *Clusterer
	Optimizer    *RouteOptimizer
	Locker       ports.DateLocker
	Geocoder     ports.Geocoder
}

type Orchestrator struct {
	deps OrchestratorDeps
	cfg  OrchestratorConfig
}

func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	if cfg.SelectionTimeout <= 0 {
		cfg.SelectionTimeout = DefaultSelectionTimeout
	}
	if cfg.ClusterRadiusKm <= 0 {
		cfg.ClusterRadiusKm = DefaultClusterRadiusKm
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Defaults == (domain.ServiceDefaults{}) {
		cfg.Defaults = domain.DefaultServiceDefaults()
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

type Confirmation struct {
	AppointmentID string
	Slot          domain.TimeSlot
}

type PointFailure struct {
	AppointmentID string
	Err           error
}

type ClusterFailure struct {
	Group LogisticGroup
	Err   error
}

type SkippedRecord struct {
	AppointmentID string
	Reason        string
}

// RunReport is the outcome of one planning run for a date.
type RunReport struct {
	RunID           string
	Date            string
	Route           []domain.ServicePoint
	TotalDistanceKm float64
	TotalMinutes    int
	Confirmed       []domain.ServicePoint
	Pending         []domain.ServicePoint
	Suggestions     map[string][]domain.TimeSlot
	Unscheduled     []string
	Confirmations   []Confirmation
	Cancelled       []string
	Failures        []PointFailure
	ClusterErrors   []ClusterFailure
	Skipped         []SkippedRecord
	States          []domain.RunState
}

// Routed counts the points placed on a suggested route.
func (r *RunReport) Routed() int { return len(r.Route) }

func (r *RunReport) Summary() string {
	return fmt.Sprintf("%d points successfully routed, %d could not be scheduled", r.Routed(), len(r.Unscheduled))
}

type clusterJob struct {
	cluster   Cluster
	confirmed []domain.ServicePoint
	pending   []domain.ServicePoint
	result    *domain.RouteOptimizationResult
	err       error
	done      bool
}

// Run plans a day interactively. Each cluster is optimized, drawn on the
// session, and every pending point with viable slots is offered to the
// operator one at a time. Chosen slots are persisted as confirmations.
func (o *Orchestrator) Run(ctx context.Context, day time.Time, session ports.MapSession) (report *RunReport, err error) {
	if session == nil {
		return nil, fmt.Errorf("run: %w", ErrSessionRequired)
	}
	return o.execute(ctx, day, session)
}

// Preview runs the same pipeline without prompts or writes. It does not take
// the date lock.
func (o *Orchestrator) Preview(ctx context.Context, day time.Time) (*RunReport, error) {
	return o.execute(ctx, day, nil)
}

func (o *Orchestrator) execute(ctx context.Context, day time.Time, session ports.MapSession) (report *RunReport, err error) {
	runID := uuid.NewString()
	ctx = obs.WithRequestID(ctx, runID)
	defer obs.Time(ctx, "orchestrator.run")(&err)

	mode := "preview"
	if session != nil {
		mode = "interactive"
	}

	day = day.In(o.cfg.Location)
	date := dayKey(day, o.cfg.Location)

	// Previews never write, so only interactive runs take the date lock.
	if o.deps.Locker != nil && session != nil {
		unlock, lockErr := o.deps.Locker.Lock(ctx, date)
		if lockErr != nil {
			obs.PlanningRuns.WithLabelValues(mode, "locked").Inc()
			return nil, fmt.Errorf("run date=%s: %w", date, lockErr)
		}
		defer func() {
			// The run context may already be cancelled; release on a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if uerr := unlock(releaseCtx); uerr != nil {
				log.Printf("run_id=%s date=%s unlock failed: %v", runID, date, uerr)
			}
		}()
	}

	tracker := domain.NewRunTracker()
	report = &RunReport{
		RunID:       runID,
		Date:        date,
		Route:       []domain.ServicePoint{},
		Suggestions: make(map[string][]domain.TimeSlot),
		Unscheduled: []string{},
	}

	defer func() {
		if err != nil {
			o.advance(tracker, runID, domain.RunError)
			obs.PlanningRuns.WithLabelValues(mode, "error").Inc()
		} else {
			o.advance(tracker, runID, domain.RunDone)
			obs.PlanningRuns.WithLabelValues(mode, "done").Inc()
			obs.PointsRouted.Add(float64(report.Routed()))
			obs.PointsUnscheduled.Add(float64(len(report.Unscheduled)))
		}
		report.States = tracker.History()
		log.Printf("run_id=%s date=%s mode=%s state=%s %s", runID, date, mode, tracker.Current(), report.Summary())
	}()

	confirmed, pending, err := o.fetchPoints(ctx, date, report)
	if err != nil {
		return report, err
	}
	report.Confirmed = confirmed
	report.Pending = pending

	o.advance(tracker, runID, domain.RunClustering)
	all := make([]domain.ServicePoint, 0, len(confirmed)+len(pending))
	all = append(all, confirmed...)
	all = append(all, pending...)
	clusters := o.deps.Clusterer.Partition(all)
	log.Printf("run_id=%s date=%s confirmed=%d pending=%d clusters=%d radius_km=%.1f",
		runID, date, len(confirmed), len(pending), len(clusters), o.cfg.ClusterRadiusKm)

	jobs := make([]*clusterJob, 0, len(clusters))
	for _, c := range clusters {
		job := &clusterJob{cluster: c}
		for _, p := range c.Points {
			if p.IsConfirmed() {
				job.confirmed = append(job.confirmed, p)
			} else {
				job.pending = append(job.pending, p)
			}
		}
		jobs = append(jobs, job)
	}

	if o.cfg.Workers > 1 && len(jobs) > 1 {
		o.precompute(ctx, day, jobs)
	}

	var booked []Interval
	failed := 0
	for _, job := range jobs {
		o.advance(tracker, runID, domain.RunOptimizing)
		if !job.done {
			job.result, job.err = o.deps.Optimizer.CalculateOptimalRoute(ctx, day, job.confirmed, job.pending)
		}

		if job.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, fmt.Errorf("run date=%s: %w", date, ctxErr)
			}
			failed++
			obs.ClusterFailures.Inc()
			log.Printf("run_id=%s date=%s group=%s optimize failed: %v", runID, date, job.cluster.Group, job.err)
			report.ClusterErrors = append(report.ClusterErrors, ClusterFailure{Group: job.cluster.Group, Err: job.err})
			for _, p := range job.pending {
				report.Unscheduled = append(report.Unscheduled, p.ID)
			}
			continue
		}

		res := job.result
		report.TotalDistanceKm += res.TotalDistanceKm
		report.TotalMinutes += res.TotalMinutes
		report.Unscheduled = append(report.Unscheduled, res.Unscheduled...)
		for id, slots := range res.TimeSlotSuggestions {
			report.Suggestions[id] = slots
		}

		route := res.SuggestedRoute
		if session != nil {
			o.render(ctx, session, runID, job, route)

			route, booked, err = o.promptCluster(ctx, tracker, session, runID, job, booked, report)
			if err != nil {
				return report, err
			}
		}
		report.Route = append(report.Route, route...)
	}

	if len(jobs) > 0 && failed == len(jobs) {
		errs := make([]error, 0, len(report.ClusterErrors))
		for _, ce := range report.ClusterErrors {
			errs = append(errs, ce.Err)
		}
		return report, fmt.Errorf("run date=%s: all %d clusters failed: %w", date, failed, errors.Join(errs...))
	}

	return report, nil
}

func (o *Orchestrator) precompute(ctx context.Context, day time.Time, jobs []*clusterJob) {
	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for _, job := range jobs {
		g.Go(func() error {
			job.result, job.err = o.deps.Optimizer.CalculateOptimalRoute(ctx, day, job.confirmed, job.pending)
			job.done = true
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) render(ctx context.Context, session ports.MapSession, runID string, job *clusterJob, route []domain.ServicePoint) {
	if err := session.ClearMarkers(ctx); err != nil {
		log.Printf("run_id=%s group=%s clear markers failed: %v", runID, job.cluster.Group, err)
	}
	scene := mapview.BuildScene(job.confirmed, job.pending, route)
	if err := session.Render(ctx, scene); err != nil {
		log.Printf("run_id=%s group=%s render failed: %v", runID, job.cluster.Group, err)
	}
}

// promptCluster offers every routed pending point of a cluster in priority
// order. booked holds the intervals confirmed earlier in this run so later
// prompts never offer a slot that collides with them.
func (o *Orchestrator) promptCluster(
	ctx context.Context,
	tracker *domain.RunTracker,
	session ports.MapSession,
	runID string,
	job *clusterJob,
	booked []Interval,
	report *RunReport,
) ([]domain.ServicePoint, []Interval, error) {
	route := append([]domain.ServicePoint(nil), job.result.SuggestedRoute...)

	for _, point := range SortPending(job.pending) {
		suggested, ok := job.result.TimeSlotSuggestions[point.ID]
		if !ok {
			continue
		}

		candidates := withoutBooked(suggested, booked, point.ServiceDuration())
		if len(candidates) == 0 {
			log.Printf("run_id=%s appointment_id=%s no candidates left after earlier confirmations", runID, point.ID)
			route = withoutPoint(route, point.ID)
			delete(report.Suggestions, point.ID)
			report.Unscheduled = append(report.Unscheduled, point.ID)
			continue
		}

		o.advance(tracker, runID, domain.RunAwaitingSelection)
		slot, err := o.selectSlot(ctx, session, point.ID, candidates)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return route, booked, fmt.Errorf("run: awaiting selection for %s: %w", point.ID, ctxErr)
			}
			obs.Confirmations.WithLabelValues("prompt_error").Inc()
			report.Failures = append(report.Failures, PointFailure{AppointmentID: point.ID, Err: err})
			continue
		}
		if slot == nil {
			obs.Confirmations.WithLabelValues("cancelled").Inc()
			report.Cancelled = append(report.Cancelled, point.ID)
			continue
		}

		o.advance(tracker, runID, domain.RunConfirming)
		confirmedPoint, err := o.confirm(ctx, point, *slot, candidates)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return route, booked, fmt.Errorf("run: confirming %s: %w", point.ID, ctxErr)
			}
			obs.Confirmations.WithLabelValues("failed").Inc()
			log.Printf("run_id=%s appointment_id=%s confirm failed: %v", runID, point.ID, err)
			report.Failures = append(report.Failures, PointFailure{AppointmentID: point.ID, Err: err})
			continue
		}

		obs.Confirmations.WithLabelValues("confirmed").Inc()
		start, end, _ := confirmedPoint.OccupiedInterval()
		booked = append(booked, Interval{Start: start, End: end})
		report.Confirmations = append(report.Confirmations, Confirmation{
			AppointmentID: point.ID,
			Slot:          domain.TimeSlot{Start: start, End: end, Period: slot.Period, TechnicianID: slot.TechnicianID},
		})
		for i := range route {
			if route[i].ID == point.ID {
				route[i] = confirmedPoint
			}
		}
		log.Printf("run_id=%s appointment_id=%s confirmed start=%s", runID, point.ID, start.Format(time.RFC3339))
	}

	return route, booked, nil
}

// selectSlot waits for one answer, bounded by SelectionTimeout. A timeout is
// treated as a cancellation.
func (o *Orchestrator) selectSlot(ctx context.Context, session ports.MapSession, id string, candidates []domain.TimeSlot) (*domain.TimeSlot, error) {
	promptCtx, cancel := context.WithTimeout(ctx, o.cfg.SelectionTimeout)
	defer cancel()

	slot, err := session.SelectSlot(promptCtx, id, candidates)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			log.Printf("req_id=%s appointment_id=%s selection timed out after %s", obs.RequestID(ctx), id, o.cfg.SelectionTimeout)
			return nil, nil
		}
		return nil, fmt.Errorf("select slot: %w", err)
	}
	return slot, nil
}

// confirm validates the chosen slot, re-checks it against storage and persists
// the confirmation.
func (o *Orchestrator) confirm(ctx context.Context, point domain.ServicePoint, slot domain.TimeSlot, candidates []domain.TimeSlot) (domain.ServicePoint, error) {
	service := point.ServiceDuration()
	occupied := domain.TimeSlot{
		Start:        slot.Start,
		End:          slot.Start.Add(service),
		Period:       slot.Period,
		TechnicianID: slot.TechnicianID,
	}

	offered := false
	for _, c := range candidates {
		if c.Contains(occupied.Start, occupied.End) {
			offered = true
			break
		}
	}
	if !offered {
		return point, fmt.Errorf("confirm %s at %s: %w", point.ID, slot.Start.Format(time.RFC3339), ErrSlotNotOffered)
	}

	free, err := o.deps.Availability.IsTimeSlotAvailable(ctx, occupied)
	if err != nil {
		return point, fmt.Errorf("confirm %s: %w", point.ID, err)
	}
	if !free {
		return point, fmt.Errorf("confirm %s at %s: %w", point.ID, slot.Start.Format(time.RFC3339), ErrSlotTaken)
	}

	if _, err := o.deps.Repo.UpdateAppointment(ctx, point.ID, domain.ConfirmationPatch(slot.Start, o.cfg.Location)); err != nil {
		return point, fmt.Errorf("confirm %s: update appointment: %w", point.ID, err)
	}

	return point.Confirm(slot.Start)
}

func (o *Orchestrator) fetchPoints(ctx context.Context, date string, report *RunReport) (confirmed, pending []domain.ServicePoint, err error) {
	confirmedAppts, err := listAppointmentsForDay(ctx, o.deps.Repo, date, domain.StatusConfirmed, o.cfg.Location)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch confirmed: %w", err)
	}
	pendingAppts, err := listAppointmentsForDay(ctx, o.deps.Repo, date, domain.StatusPending, o.cfg.Location)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch pending: %w", err)
	}

	confirmed = o.mapPoints(ctx, confirmedAppts, report)
	pending = o.mapPoints(ctx, pendingAppts, report)
	return confirmed, pending, nil
}

// mapPoints converts appointments into service points, geocoding missing
// coordinates when a geocoder is configured. Records that cannot be mapped are
// skipped and reported.
func (o *Orchestrator) mapPoints(ctx context.Context, appts []domain.Appointment, report *RunReport) []domain.ServicePoint {
	out := make([]domain.ServicePoint, 0, len(appts))
	for _, a := range appts {
		if a.Coordinates == nil && o.deps.Geocoder != nil && a.Address != "" {
			coords, err := o.deps.Geocoder.Geocode(ctx, a.Address)
			if err != nil {
				log.Printf("req_id=%s appointment_id=%s geocode failed: %v", obs.RequestID(ctx), a.ID, err)
			} else {
				a.Coordinates = &coords
			}
		}

		p, err := a.ToServicePoint(o.cfg.Defaults)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedRecord{AppointmentID: a.ID, Reason: err.Error()})
			continue
		}
		out = append(out, p)
	}
	return out
}

func (o *Orchestrator) advance(tracker *domain.RunTracker, runID string, to domain.RunState) {
	if err := tracker.Advance(to); err != nil {
		log.Printf("run_id=%s %v", runID, err)
	}
}

func withoutPoint(route []domain.ServicePoint, id string) []domain.ServicePoint {
	out := route[:0]
	for _, p := range route {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// withoutBooked drops candidates that can no longer host the service once the
// intervals booked earlier in the run are taken out.
func withoutBooked(candidates []domain.TimeSlot, booked []Interval, service time.Duration) []domain.TimeSlot {
	if len(booked) == 0 {
		return candidates
	}
	out := make([]domain.TimeSlot, 0, len(candidates))
	for _, c := range candidates {
		for _, frag := range FragmentWindow(c, booked) {
			if frag.Duration() >= service {
				out = append(out, frag)
			}
		}
	}
	return out
}
