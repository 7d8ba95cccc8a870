package core

import (
	"time"

	"turnscan/protocol"
)

// Config holds the scanner settings. They change only through commands.
type Config struct {
	RPM             uint32        // Motor RPM (1..MaxRPM)
	TurnsPerCircle  uint32        // Photos per full turntable rotation
	Clockwise       bool          // Turn direction
	WaitAfterPhoto  time.Duration // Exposure time allowed before moving again
	TotalSteps      uint32        // Motor steps per turntable rotation (gear ratio)
	RotateIncrement uint32        // Steps per manual rotate command
	Settle          time.Duration // Pause after motion to damp jitter
}

// DefaultConfig returns the settings of a freshly booted rig:
// 10 RPM motor with a 1:4 gear to the turntable
func DefaultConfig() Config {
	return Config{
		RPM:             10,
		TurnsPerCircle:  64,
		Clockwise:       true,
		WaitAfterPhoto:  3000 * time.Millisecond,
		TotalSteps:      4096,
		RotateIncrement: 64,
		Settle:          100 * time.Millisecond,
	}
}

// action is a manual operation parked until the scanner is ready
type action func(now time.Duration)

// Scanner sequences motion and photography one tick at a time.
//
// At most one of moving and shooting is true. A move stays "moving"
// through its settle delay. Autoscan alternates photo and turn until
// movesLeft reaches zero.
type Scanner struct {
	cfg    Config
	motor  Motor
	camera Camera
	clock  Clock

	// Unsolicited status reports (wired to the outbound queue)
	report func(protocol.Record)

	moving     bool
	shooting   bool
	ready      bool
	movesLeft  uint32
	photoStart time.Duration
	settle     Deadline
	hasMoved   bool

	// Waits for the scanner to become ready; newer requests replace it
	pending action

	// Counters, for diagnostics
	photos uint32
	turns  uint32
}

// NewScanner creates a scanner in the idle state
func NewScanner(cfg Config, motor Motor, camera Camera, clock Clock) *Scanner {
	if cfg.TurnsPerCircle == 0 {
		cfg.TurnsPerCircle = 1
	}
	if cfg.TotalSteps == 0 {
		cfg.TotalSteps = MotorStepsPerRev
	}
	motor.SetRPM(cfg.RPM)
	motor.SetStepsPerRotation(cfg.TotalSteps)

	return &Scanner{
		cfg:    cfg,
		motor:  motor,
		camera: camera,
		clock:  clock,
	}
}

// SetReporter sets the sink for unsolicited status records
func (s *Scanner) SetReporter(fn func(protocol.Record)) {
	s.report = fn
}

func (s *Scanner) emit(cmd byte, val uint32) {
	if s.report != nil {
		s.report(protocol.NewRecord(cmd, val))
	}
}

// Tick advances the state machine by one step. Call it every loop.
func (s *Scanner) Tick() {
	now := s.clock.Now()

	if s.pending != nil && s.IsCameraReady() {
		a := s.pending
		s.pending = nil
		a(now)
		return
	}

	if s.movesLeft > 0 {
		s.continueAutoscan(now)
		return
	}

	switch {
	case s.moving:
		s.runMove(now)
	case s.shooting:
		if s.photoDone(now) {
			s.finishPhoto()
		}
	default:
		s.setReady(true)
	}
}

func (s *Scanner) continueAutoscan(now time.Duration) {
	switch {
	case !s.moving && !s.shooting:
		s.setReady(true)
		s.takePhoto(now)

	case s.shooting:
		if s.photoDone(now) {
			s.finishPhoto()
			s.movesLeft--
			s.emit(protocol.CmdAutoscan, s.movesLeft)
			s.startMove(s.cfg.Clockwise, s.StepsPerTurn())
		}

	case s.moving:
		s.runMove(now)
	}
}

// runMove steps the motor, then holds moving through the settle delay
func (s *Scanner) runMove(now time.Duration) {
	if s.settle.Armed() {
		if s.settle.Due(now) {
			s.settle.Clear()
			s.moving = false
			s.emit(protocol.CmdMove, 0)
			s.emit(protocol.CmdPosition, s.motor.Position())
		}
		return
	}

	s.motor.Run(now)
	if s.motor.StepsRemaining() == 0 {
		s.settle.Arm(now, s.cfg.Settle)
	}
}

func (s *Scanner) photoDone(now time.Duration) bool {
	return now-s.photoStart >= s.cfg.WaitAfterPhoto
}

func (s *Scanner) takePhoto(now time.Duration) {
	s.camera.Trigger()
	s.photoStart = now
	s.shooting = true
	s.photos++
	s.setReady(false)
	s.emit(protocol.CmdPhoto, 1)
}

func (s *Scanner) finishPhoto() {
	s.shooting = false
	s.emit(protocol.CmdPhoto, 0)
}

func (s *Scanner) startMove(clockwise bool, steps uint32) {
	if steps == 0 {
		return
	}
	s.motor.StartMove(clockwise, steps)
	s.moving = true
	s.hasMoved = true
	s.turns++
	s.setReady(false)
	s.emit(protocol.CmdMove, 1)
}

// cancelMove stops the motor and lets the move settle
func (s *Scanner) cancelMove(now time.Duration) {
	if !s.moving || s.settle.Armed() {
		return
	}
	s.motor.Stop()
	s.settle.Arm(now, s.cfg.Settle)
}

func (s *Scanner) setReady(ready bool) {
	if s.ready == ready {
		return
	}
	s.ready = ready
	s.camera.SetReady(ready)
}

// request runs a manual operation now if the scanner is idle. Otherwise
// autoscan is stopped, any move is cancelled, any exposure is waited out,
// and the operation runs on the first ready tick.
func (s *Scanner) request(a action) {
	now := s.clock.Now()
	if s.movesLeft > 0 {
		s.stopAutoscan(now)
	}
	if s.pending == nil && s.IsCameraReady() {
		a(now)
		return
	}
	s.cancelMove(now)
	s.pending = a
}

// StartAutoscan begins a full rotation of photo/turn pairs.
// It does nothing if an autoscan is already running.
func (s *Scanner) StartAutoscan() {
	if s.movesLeft > 0 {
		return
	}
	s.request(func(time.Duration) {
		s.movesLeft = s.cfg.TurnsPerCircle
		s.emit(protocol.CmdAutoscan, s.movesLeft)
	})
}

// StopAutoscan cancels autoscan and any pending operation.
// A move in progress is cancelled; an exposure in progress completes.
func (s *Scanner) StopAutoscan() {
	s.pending = nil
	s.stopAutoscan(s.clock.Now())
}

func (s *Scanner) stopAutoscan(now time.Duration) {
	s.cancelMove(now)
	if s.movesLeft > 0 {
		s.movesLeft = 0
		s.emit(protocol.CmdAutoscan, 0)
	}
}

// TakePhoto triggers the camera
func (s *Scanner) TakePhoto() {
	s.request(s.takePhoto)
}

// Turn moves one photo increment in the configured direction
func (s *Scanner) Turn() {
	s.request(func(time.Duration) {
		s.startMove(s.cfg.Clockwise, s.StepsPerTurn())
	})
}

// Rotate moves the manual rotate increment in the configured direction
func (s *Scanner) Rotate() {
	s.request(func(time.Duration) {
		s.startMove(s.cfg.Clockwise, s.cfg.RotateIncrement)
	})
}

// MoveToStep moves to an absolute step, travelling in the configured direction
func (s *Scanner) MoveToStep(target uint32) {
	s.request(func(time.Duration) {
		s.startMove(s.cfg.Clockwise, s.stepsTo(target))
	})
}

// MoveToDegree moves to an angle of the turntable
func (s *Scanner) MoveToDegree(deg uint32) {
	s.MoveToStep(DegreeToStep(deg, s.cfg.TotalSteps))
}

// stepsTo returns the steps from the current position to target
func (s *Scanner) stepsTo(target uint32) uint32 {
	total := s.cfg.TotalSteps
	pos := s.motor.Position()
	target %= total
	if s.cfg.Clockwise {
		return (target + total - pos) % total
	}
	return (pos + total - target) % total
}

// DegreeToStep converts an angle to a step position
func DegreeToStep(deg, total uint32) uint32 {
	return uint32(uint64(deg%360) * uint64(total) / 360)
}

// StepsPerTurn returns the step size of one autoscan turn
func (s *Scanner) StepsPerTurn() uint32 {
	return s.cfg.TotalSteps / s.cfg.TurnsPerCircle
}

// Config returns a copy of the current settings
func (s *Scanner) Config() Config {
	return s.cfg
}

// SetRPM sets the motor speed
func (s *Scanner) SetRPM(rpm uint32) {
	s.cfg.RPM = rpm
	s.motor.SetRPM(rpm)
}

// SetTurnsPerCircle sets the number of photos per rotation
func (s *Scanner) SetTurnsPerCircle(turns uint32) {
	s.cfg.TurnsPerCircle = turns
}

// SetClockwise sets the turn direction
func (s *Scanner) SetClockwise(cw bool) {
	s.cfg.Clockwise = cw
}

// SetWaitAfterPhoto sets the exposure wait
func (s *Scanner) SetWaitAfterPhoto(d time.Duration) {
	s.cfg.WaitAfterPhoto = d
}

// SetRotateIncrement sets the steps per manual rotate
func (s *Scanner) SetRotateIncrement(steps uint32) {
	s.cfg.RotateIncrement = steps
}

// SetTotalSteps sets the steps per turntable rotation
func (s *Scanner) SetTotalSteps(steps uint32) {
	s.cfg.TotalSteps = steps
	s.motor.SetStepsPerRotation(steps)
}

// IsCameraReady reports whether the scanner is neither moving nor shooting
func (s *Scanner) IsCameraReady() bool {
	return !s.moving && !s.shooting
}

// IsMoving reports whether a move (or its settle delay) is in progress
func (s *Scanner) IsMoving() bool {
	return s.moving
}

// IsShooting reports whether an exposure is in progress
func (s *Scanner) IsShooting() bool {
	return s.shooting
}

// IsAutoscanning reports whether autoscan is running
func (s *Scanner) IsAutoscanning() bool {
	return s.movesLeft > 0
}

// AutoscanMovesLeft returns the moves left in the current autoscan
func (s *Scanner) AutoscanMovesLeft() uint32 {
	return s.movesLeft
}

// HasPending reports whether a manual operation is waiting
func (s *Scanner) HasPending() bool {
	return s.pending != nil
}

// HasMoved reports whether the motor has moved since boot
func (s *Scanner) HasMoved() bool {
	return s.hasMoved
}

// Position returns the current step position
func (s *Scanner) Position() uint32 {
	return s.motor.Position()
}

// PhotoCount returns the number of shutter triggers since boot
func (s *Scanner) PhotoCount() uint32 {
	return s.photos
}

// TurnCount returns the number of moves started since boot
func (s *Scanner) TurnCount() uint32 {
	return s.turns
}
