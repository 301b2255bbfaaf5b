package ansi

// EventKind discriminates parser events.
type EventKind uint8

const (
	// EventText is a run of printable text under the active style.
	EventText EventKind = iota
	// EventNewline moves output to a fresh line.
	EventNewline
	// EventCarriageReturn rewinds to the start of the current line; the
	// next text overwrites it in place (progress-bar redraw).
	EventCarriageReturn
	// EventEraseLine clears the current line (CSI K).
	EventEraseLine
)

// Event is one styled output action produced by the parser.
type Event struct {
	Kind  EventKind
	Text  string // set for EventText
	Style Style  // active style for EventText
}

// parser states. State persists across Feed calls so escape sequences split
// over chunk boundaries parse identically to unsplit input.
type state uint8

const (
	stateNormal state = iota
	stateEscape       // saw ESC, awaiting introducer
	stateCSI          // inside CSI, accumulating parameter bytes
	stateOSC          // inside OSC, discarding until terminator
)

const (
	byteESC = 0x1b
	byteBEL = 0x07
)

// maxCSIParams caps accumulated CSI parameter bytes; a stream that exceeds
// this is malformed and the sequence is abandoned.
const maxCSIParams = 64

// Parser is a stateful, incremental ANSI stream parser.
//
// A Parser is bound to one build session: create a fresh one per session so
// no style or partial sequence leaks from a prior run. Feed may be called
// with arbitrarily split chunks. Parser is not safe for concurrent use; the
// session's reader goroutine is the only caller.
type Parser struct {
	state  state
	style  Style
	params []byte // accumulated CSI parameter/intermediate bytes
	oscEsc bool   // inside OSC, previous byte was ESC (ST terminator)
}

// NewParser returns a parser in its initial state with the default style.
func NewParser() *Parser {
	return &Parser{params: make([]byte, 0, maxCSIParams)}
}

// Reset returns the parser to its initial state, dropping any partial
// sequence and the active style.
func (p *Parser) Reset() {
	p.state = stateNormal
	p.style = Style{}
	p.params = p.params[:0]
	p.oscEsc = false
}

// Style returns the currently active style.
func (p *Parser) Style() Style { return p.style }

// Feed consumes one chunk of raw process output and returns the events it
// completes. Text bytes are emitted eagerly; adjacent runs under one style
// may be split at chunk boundaries, and [playbench/pkg/term.Buffer]
// coalesces them when building lines.
func (p *Parser) Feed(chunk []byte) []Event {
	var events []Event
	textStart := -1

	flushText := func(end int) {
		if textStart >= 0 && end > textStart {
			events = append(events, Event{
				Kind:  EventText,
				Text:  string(chunk[textStart:end]),
				Style: p.style,
			})
		}
		textStart = -1
	}

	for i := 0; i < len(chunk); i++ {
		b := chunk[i]

		switch p.state {
		case stateNormal:
			switch {
			case b == byteESC:
				flushText(i)
				p.state = stateEscape
			case b == '\n':
				flushText(i)
				events = append(events, Event{Kind: EventNewline})
			case b == '\r':
				flushText(i)
				events = append(events, Event{Kind: EventCarriageReturn})
			case b == '\t' || b >= 0x20:
				if textStart < 0 {
					textStart = i
				}
			default:
				// Other C0 controls (BEL, BS, ...) carry no meaning in a
				// scrolling log; drop them.
				flushText(i)
			}

		case stateEscape:
			switch b {
			case '[':
				p.state = stateCSI
				p.params = p.params[:0]
			case ']':
				p.state = stateOSC
				p.oscEsc = false
			default:
				// Two-byte escape (ESC c, ESC =, ...) or garbage: discard
				// and resynchronize.
				p.state = stateNormal
			}

		case stateCSI:
			switch {
			case b >= 0x30 && b <= 0x3f, b >= 0x20 && b <= 0x2f:
				if len(p.params) >= maxCSIParams {
					p.state = stateNormal
					p.params = p.params[:0]
					continue
				}
				p.params = append(p.params, b)
			case b >= 0x40 && b <= 0x7e:
				if ev, ok := p.dispatchCSI(b); ok {
					events = append(events, ev)
				}
				p.state = stateNormal
				p.params = p.params[:0]
			default:
				// Malformed sequence; drop it without emitting garbage.
				p.state = stateNormal
				p.params = p.params[:0]
			}

		case stateOSC:
			// OSC payloads (window titles, hyperlinks) end with BEL or ST
			// (ESC \). The payload itself is never rendered.
			switch {
			case b == byteBEL:
				p.state = stateNormal
			case p.oscEsc && b == '\\':
				p.state = stateNormal
				p.oscEsc = false
			default:
				p.oscEsc = b == byteESC
			}
		}
	}
	flushText(len(chunk))

	return events
}

// dispatchCSI interprets a complete CSI sequence given its final byte.
// SGR updates the active style in place; erase-line becomes an event;
// everything else (cursor movement, screen clears) is discarded.
func (p *Parser) dispatchCSI(final byte) (Event, bool) {
	switch final {
	case 'm':
		p.style.apply(parseParams(p.params))
		return Event{}, false
	case 'K':
		// Any erase-line variant redraws the current line in this model.
		return Event{Kind: EventEraseLine}, true
	default:
		return Event{}, false
	}
}

// parseParams decodes the semicolon-separated decimal parameters of a CSI
// sequence. Empty parameters default to 0. Non-digit bytes (intermediate or
// private-mode markers) invalidate the sequence and yield no parameters.
func parseParams(raw []byte) []int {
	params := []int{}
	cur := 0
	for _, b := range raw {
		switch {
		case b >= '0' && b <= '9':
			cur = cur*10 + int(b-'0')
			if cur > 1<<16 {
				return nil
			}
		case b == ';':
			params = append(params, cur)
			cur = 0
		default:
			return nil
		}
	}
	return append(params, cur)
}
