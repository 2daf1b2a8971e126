package emv

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/emvtap/internal/observability"
	"github.com/danmuck/emvtap/internal/protocol/apdu"
	"github.com/danmuck/emvtap/internal/protocol/tlv"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var errNoResponse = errors.New("no response")

// Stage names the protocol step a cycle failure belongs to.
type Stage int

const (
	StageNone Stage = iota
	StageDiscover
	StageSelect
	StageProcessingOptions
	StageReadRecords
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageDiscover:
		return "discover"
	case StageSelect:
		return "select"
	case StageProcessingOptions:
		return "processing_options"
	case StageReadRecords:
		return "read_records"
	default:
		return fmt.Sprintf("UnknownStage(%d)", int(s))
	}
}

// State is the position of a cycle in the tap protocol. States only move
// forward; StateFailed is terminal and reachable from any other state.
type State int

const (
	StateStart State = iota
	StateAIDDiscovered
	StateApplicationSelected
	StateOptionsObtained
	StateRecordsRead
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateAIDDiscovered:
		return "AID_DISCOVERED"
	case StateApplicationSelected:
		return "APPLICATION_SELECTED"
	case StateOptionsObtained:
		return "OPTIONS_OBTAINED"
	case StateRecordsRead:
		return "RECORDS_READ"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UnknownState(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRecordsRead || s == StateFailed
}

// Record is the result of one READ RECORD.
type Record struct {
	SFI    uint8
	Number uint8
	// Data is the response without status words.
	Data []byte
	Tree *tlv.Tree
	Err  error
}

func (r Record) OK() bool {
	return r.Err == nil
}

// Cycle is the per-tap transaction context. Every byte slice it holds is
// owned by the cycle and never aliases a transport buffer.
type Cycle struct {
	ID        uuid.UUID
	State     State
	Reached   State
	Candidate Candidate
	PDOL      []byte
	PDOLData  []byte
	AIP       []byte
	AFL       []byte
	Files     []FileEntry
	Records   []Record
}

func newCycle() *Cycle {
	return &Cycle{ID: uuid.New(), State: StateStart, Reached: StateStart}
}

func (c *Cycle) advance(to State) {
	if c.State.Terminal() || to <= c.State {
		panic(fmt.Sprintf("emv: invalid transition %s -> %s", c.State, to))
	}
	c.State = to
	c.Reached = to
}

func (c *Cycle) fail() {
	c.State = StateFailed
}

// Outcome is the reported result of one tap cycle.
type Outcome struct {
	CycleID uuid.UUID
	// State is StateRecordsRead or StateFailed.
	State State
	// Reached is the last state before failure, or State on success.
	Reached   State
	Candidate Candidate
	Files     []FileEntry
	Records   []Record
	Err       *CycleError
	Started   time.Time
	Duration  time.Duration
}

func (o Outcome) Success() bool {
	return o.Err == nil && o.State == StateRecordsRead
}

// RecordsOK counts records read without error.
func (o Outcome) RecordsOK() int {
	n := 0
	for _, r := range o.Records {
		if r.OK() {
			n++
		}
	}
	return n
}

// Reader runs tap cycles against one transport.
type Reader struct {
	transport Transport
	resolver  *Resolver
	log       zerolog.Logger
}

type Option func(*Reader)

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reader) {
		r.log = logger
	}
}

func NewReader(t Transport, data TerminalData, opts ...Option) *Reader {
	r := &Reader{
		transport: t,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.resolver = NewResolver(data, r.log)
	r.log = r.log.With().Str("component", "emv.reader").Logger()
	return r
}

// RunCycle performs one complete tap: discovery, application selection,
// processing options and record reads. Steps up to processing options fail
// fast; record reads are best effort per record.
func (r *Reader) RunCycle(ctx context.Context) Outcome {
	start := time.Now()
	cycle := newCycle()
	log := r.log.With().Str("cycle", cycle.ID.String()).Logger()
	ctx, span := observability.StartSpan(ctx, "emv.cycle", attribute.String("emv.cycle_id", cycle.ID.String()))

	err := r.run(ctx, cycle, log)

	out := Outcome{
		CycleID:   cycle.ID,
		State:     cycle.State,
		Reached:   cycle.Reached,
		Candidate: cycle.Candidate,
		Files:     cycle.Files,
		Records:   cycle.Records,
		Err:       err,
		Started:   start,
		Duration:  time.Since(start),
	}
	stage := StageNone
	if err != nil {
		stage = err.Stage
		observability.EndSpan(span, err)
		log.Warn().
			Err(err.Err).
			Str("stage", stage.String()).
			Str("reached", out.Reached.String()).
			Dur("duration", out.Duration).
			Msg("cycle failed")
	} else {
		span.SetAttributes(attribute.Int("emv.records", len(out.Records)))
		observability.EndSpan(span, nil)
		log.Info().
			Str("aid", out.Candidate.AIDHex()).
			Int("files", len(out.Files)).
			Int("records", len(out.Records)).
			Int("records_ok", out.RecordsOK()).
			Dur("duration", out.Duration).
			Msg("cycle complete")
	}
	observability.RecordCycle(out.State.String(), stage.String(), out.Duration)
	return out
}

func (r *Reader) run(ctx context.Context, c *Cycle, log zerolog.Logger) *CycleError {
	steps := []struct {
		stage Stage
		next  State
		fn    func(context.Context, *Cycle, zerolog.Logger) error
	}{
		{StageDiscover, StateAIDDiscovered, r.discover},
		{StageSelect, StateApplicationSelected, r.selectApplication},
		{StageProcessingOptions, StateOptionsObtained, r.processingOptions},
		{StageReadRecords, StateRecordsRead, r.readRecords},
	}
	for _, step := range steps {
		stepCtx, span := observability.StartSpan(ctx, "emv."+step.stage.String())
		err := step.fn(stepCtx, c, log)
		observability.EndSpan(span, err)
		if err != nil {
			c.fail()
			return &CycleError{Stage: step.stage, Err: err}
		}
		c.advance(step.next)
		log.Debug().Str("state", c.State.String()).Msg("cycle advanced")
	}
	return nil
}

func (r *Reader) discover(ctx context.Context, c *Cycle, log zerolog.Logger) error {
	resp, err := r.exchange(ctx, apdu.SelectPPSE(), log)
	if err != nil {
		return err
	}
	tree, err := decodeTree("discovery response", resp.Data)
	if err != nil {
		return err
	}
	logTree(log, "discovery response", tree)
	candidate, err := SelectCandidate(tree)
	if err != nil {
		return err
	}
	c.Candidate = candidate
	log.Info().Str("aid", candidate.AIDHex()).Str("label", candidate.Label).Msg("application selected")
	return nil
}

func (r *Reader) selectApplication(ctx context.Context, c *Cycle, log zerolog.Logger) error {
	resp, err := r.exchange(ctx, apdu.Select(c.Candidate.AID), log)
	if err != nil {
		return err
	}
	tree, err := decodeTree("select response", resp.Data)
	if err != nil {
		return err
	}
	logTree(log, "select response", tree)
	if pdol, ok := tree.Find(TagPDOL); ok {
		c.PDOL = pdol.Value()
	}
	return nil
}

func (r *Reader) processingOptions(ctx context.Context, c *Cycle, log zerolog.Logger) error {
	data, err := r.resolver.Resolve(c.PDOL)
	if err != nil {
		return err
	}
	c.PDOLData = data
	resp, err := r.exchange(ctx, apdu.GetProcessingOptions(data), log)
	if err != nil {
		return err
	}
	tree, err := decodeTree("processing options", resp.Data)
	if err != nil {
		return err
	}
	logTree(log, "processing options", tree)
	aip, afl, err := processingOptionsFrom(tree)
	if err != nil {
		return err
	}
	c.AIP = aip
	c.AFL = afl
	files, problems := DecodeAFL(afl)
	for _, p := range problems {
		log.Warn().Err(p).Msg("skipped file locator entry")
	}
	c.Files = files
	return nil
}

// processingOptionsFrom extracts the AIP and AFL from a format 2 (77)
// response, or splits a format 1 (80) response into both.
func processingOptionsFrom(tree *tlv.Tree) (aip, afl []byte, err error) {
	if node, ok := tree.Find(TagAFL); ok {
		afl = node.Value()
		if n, ok := tree.Find(TagApplicationInterchange); ok {
			aip = n.Value()
		}
		return aip, afl, nil
	}
	if node, ok := tree.Find(TagResponseFormat1); ok && node.Len() > 2 {
		v := node.Value()
		return v[:2], v[2:], nil
	}
	return nil, nil, &ParseError{What: "processing options", Err: ErrMissingAFL}
}

func (r *Reader) readRecords(ctx context.Context, c *Cycle, log zerolog.Logger) error {
	for _, file := range c.Files {
		for n := int(file.First); n <= int(file.Last); n++ {
			rec := r.readRecord(ctx, file.SFI, uint8(n), log)
			observability.RecordRecordRead(rec.OK())
			c.Records = append(c.Records, rec)
		}
	}
	return nil
}

func (r *Reader) readRecord(ctx context.Context, sfi, number uint8, log zerolog.Logger) Record {
	rec := Record{SFI: sfi, Number: number}
	resp, err := r.exchange(ctx, apdu.ReadRecord(sfi, number), log)
	if err != nil {
		rec.Err = err
		log.Warn().Err(err).Uint8("sfi", sfi).Uint8("record", number).Msg("record skipped")
		return rec
	}
	rec.Data = resp.Data
	tree, err := decodeTree("record", resp.Data)
	if err != nil {
		rec.Err = err
		log.Warn().Err(err).Uint8("sfi", sfi).Uint8("record", number).Msg("record undecodable")
		return rec
	}
	rec.Tree = tree
	logTree(log.With().Uint8("sfi", sfi).Uint8("record", number).Logger(), "record", tree)
	return rec
}

// exchange sends one command and validates the response. Metrics are
// labelled by instruction and result class.
func (r *Reader) exchange(ctx context.Context, cmd apdu.Command, log zerolog.Logger) (apdu.Response, error) {
	ins := cmd.Instruction.String()
	raw, err := cmd.Encode()
	if err != nil {
		return apdu.Response{}, &ParseError{What: "command", Err: err}
	}
	log.Trace().Str("ins", ins).Str("capdu", hex.EncodeToString(raw)).Msg("send")

	start := time.Now()
	resp, err := r.transport.Exchange(ctx, raw)
	elapsed := time.Since(start)
	switch {
	case err != nil:
		observability.RecordExchange(ins, "transport_error", elapsed)
		return apdu.Response{}, &TransportError{Op: ins, Err: err}
	case len(resp) == 0:
		observability.RecordExchange(ins, "transport_error", elapsed)
		return apdu.Response{}, &TransportError{Op: ins, Err: errNoResponse}
	}
	log.Trace().Str("ins", ins).Str("rapdu", hex.EncodeToString(resp)).Dur("elapsed", elapsed).Msg("recv")

	parsed, err := apdu.ParseResponse(resp)
	if err != nil {
		observability.RecordExchange(ins, "status_error", elapsed)
		return apdu.Response{}, err
	}
	observability.RecordExchange(ins, "ok", elapsed)
	return parsed, nil
}

func decodeTree(what string, data []byte) (*tlv.Tree, error) {
	tree, err := tlv.Decode(data)
	if err != nil {
		return nil, &ParseError{What: what, Err: err}
	}
	return tree, nil
}

func logTree(log zerolog.Logger, what string, tree *tlv.Tree) {
	if e := log.Debug(); e.Enabled() {
		e.Str("what", what).Msg("decoded\n" + FormatTree(tree))
	}
}
