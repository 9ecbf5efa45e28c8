package offsetstate

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/r3e-network/http-ingest-connector/internal/config"
	"github.com/r3e-network/http-ingest-connector/internal/record"
	"github.com/tidwall/gjson"
)

// ErrParseFailure signals that a response's pagination indicator could
// not be parsed; per the offset-advance invariant, the caller must
// leave the offset untouched and surface this as a page-level parse
// error rather than a transport failure.
var ErrParseFailure = errors.New("offsetstate: could not parse pagination indicator")

// PrepareResult carries the URL to request next and, for modes that
// consume a value before the request is even issued (chaining
// children), the value that was dequeued.
type PrepareResult struct {
	URL         string
	ParentValue string
}

// Prepare computes the next request URL for ep given its current
// state s. It does not mutate s; for Chaining, the head of the
// parent-value queue is peeked (not popped) so a failed request
// can be retried against the same value. http.request.parameters are
// applied uniformly across every mode once the mode-specific URL is
// formed.
func Prepare(ep config.EndpointConfig, baseURL string, s *State, vars TemplateVars) (PrepareResult, error) {
	var result PrepareResult
	switch ep.OffsetMode {
	case config.OffsetModeODataPagination:
		r, err := prepareOData(ep, baseURL, s)
		if err != nil {
			return PrepareResult{}, err
		}
		result = r
	case config.OffsetModeChaining:
		if s.Chaining == nil || len(s.Chaining.ParentValues) == 0 {
			return PrepareResult{}, errors.New("offsetstate: chaining queue empty")
		}
		val := s.Chaining.ParentValues[0]
		result = PrepareResult{
			URL:         joinURL(baseURL, SubstituteParentValue(ep.PathTemplate, val)),
			ParentValue: val,
		}
	case config.OffsetModeTimestamp:
		result = prepareTimestamp(ep, baseURL, s, vars)
	default:
		path := Substitute(ep.PathTemplate, s, vars)
		result = PrepareResult{URL: joinURL(baseURL, path)}
	}
	result.URL = appendParameters(result.URL, ep.Parameters, s, vars)
	return result, nil
}

// prepareTimestamp builds the request URL for TIMESTAMP_PAGINATION by
// appending timestamp_param=<watermark>, the watermark formatted per
// timestamp_format (RFC 3339 by default), to the templated path.
func prepareTimestamp(ep config.EndpointConfig, baseURL string, s *State, vars TemplateVars) PrepareResult {
	path := Substitute(ep.PathTemplate, s, vars)
	u := joinURL(baseURL, path)

	param := ep.TimestampParam
	if param == "" {
		param = "timestamp_param"
	}
	format := ep.TimestampFormat
	if format == "" {
		format = time.RFC3339
	}
	value := s.Timestamp.Watermark.Format(format)

	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return PrepareResult{URL: u + sep + param + "=" + url.QueryEscape(value)}
}

// appendParameters applies http.request.parameters as query parameters
// on top of a mode-specific URL, substituting template placeholders in
// each value the same way headers and the request body are substituted.
// Keys are sorted so the resulting URL is deterministic for tests and
// for cache-key hashing.
func appendParameters(rawURL string, params map[string]string, s *State, vars TemplateVars) string {
	if len(params) == 0 {
		return rawURL
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(rawURL)
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	for _, k := range keys {
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(k))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(Substitute(params[k], s, vars)))
		sep = "&"
	}
	return b.String()
}

func prepareOData(ep config.EndpointConfig, baseURL string, s *State) (PrepareResult, error) {
	if s.ODataLink == nil {
		return PrepareResult{}, errors.New("offsetstate: odata state not initialized")
	}
	if s.ODataLink.CurrentLink == "" {
		return PrepareResult{URL: joinURL(baseURL, ep.PathTemplate) + initialQuery(ep)}, nil
	}
	if ep.ODataTokenMode == config.ODataTokenModeTokenOnly {
		token := extractODataToken(s.ODataLink.CurrentLink)
		param := "$skiptoken"
		if s.ODataLink.Phase == ODataPhaseDeltaLink {
			param = "$deltatoken"
		}
		return PrepareResult{URL: joinURL(baseURL, ep.PathTemplate) + "?" + param + "=" + url.QueryEscape(token)}, nil
	}
	return PrepareResult{URL: s.ODataLink.CurrentLink}, nil
}

func initialQuery(ep config.EndpointConfig) string {
	if ep.InitialOffset == "" {
		return ""
	}
	if strings.HasPrefix(ep.InitialOffset, "?") {
		return ep.InitialOffset
	}
	return "?" + ep.InitialOffset
}

func extractODataToken(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	q := u.Query()
	if t := q.Get("$skiptoken"); t != "" {
		return t
	}
	return q.Get("$deltatoken")
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// AdvanceResult reports what happened to the state after a successful
// fetch.
type AdvanceResult struct {
	Advanced     bool
	SweepDone    bool
	ExtractedIDs []string // chaining_value_pointer values, for the chaining engine
}

// Advance updates s from a successfully fetched response body. It must
// only be called after a 2xx response; callers must not call Advance
// on a failed fetch, preserving the "offset unchanged on terminal
// failure" invariant by construction.
func Advance(ep config.EndpointConfig, s *State, body []byte) (AdvanceResult, error) {
	switch ep.OffsetMode {
	case config.OffsetModeSimpleIncrementing:
		return advanceSimpleCounter(ep, s)
	case config.OffsetModeCursorPagination:
		return advanceCursor(ep, s, body)
	case config.OffsetModeODataPagination:
		return advanceODataLink(ep, s, body)
	case config.OffsetModeTimestamp:
		return advanceTimestamp(ep, s, body)
	case config.OffsetModeChaining:
		return advanceChaining(s)
	case config.OffsetModeSnapshotPagination:
		return advanceSnapshot(ep, s, body)
	default:
		return AdvanceResult{}, errors.New("offsetstate: unknown offset mode")
	}
}

func advanceSimpleCounter(ep config.EndpointConfig, s *State) (AdvanceResult, error) {
	inc := ep.Increment
	if inc == 0 {
		inc = 1
	}
	s.SimpleCounter.Value += inc
	return AdvanceResult{Advanced: true}, nil
}

func advanceCursor(ep config.EndpointConfig, s *State, body []byte) (AdvanceResult, error) {
	res, ok := record.Resolve(body, ep.NextPagePointer)
	if !ok {
		return AdvanceResult{}, ErrParseFailure
	}
	if res.Type == gjson.Null {
		s.Cursor.Exhausted = true
		s.Cursor.Token = cursorSeed(ep)
		return AdvanceResult{Advanced: true, SweepDone: true}, nil
	}
	s.Cursor.Token = res.String()
	s.Cursor.Exhausted = false
	return AdvanceResult{Advanced: true}, nil
}

// cursorSeed returns the token a cursor endpoint's next sweep restarts
// from once the current one drains, the same seed New uses to build
// the endpoint's initial state.
func cursorSeed(ep config.EndpointConfig) string {
	if ep.InitialOffset != "" {
		return ep.InitialOffset
	}
	return "start"
}

func advanceODataLink(ep config.EndpointConfig, s *State, body []byte) (AdvanceResult, error) {
	nextLink, hasNext := record.ResolveString(body, jsonField(ep.ODataNextLinkField, "/@odata.nextLink"))
	deltaLink, hasDelta := record.ResolveString(body, jsonField(ep.ODataDeltaLinkField, "/@odata.deltaLink"))

	wasNextLinkPhase := s.ODataLink.Phase == ODataPhaseNextLink

	switch {
	case hasNext && nextLink != "":
		s.ODataLink.CurrentLink = nextLink
		s.ODataLink.Phase = ODataPhaseNextLink
		return AdvanceResult{Advanced: true}, nil
	case hasDelta && deltaLink != "":
		s.ODataLink.CurrentLink = deltaLink
		s.ODataLink.Phase = ODataPhaseDeltaLink
		s.ODataLink.DeltaToken = extractODataToken(deltaLink)
		return AdvanceResult{Advanced: true, SweepDone: wasNextLinkPhase}, nil
	default:
		wasDelta := s.ODataLink.Phase == ODataPhaseDeltaLink
		s.ODataLink.CurrentLink = ""
		return AdvanceResult{Advanced: true, SweepDone: !wasDelta}, nil
	}
}

func jsonField(field, fallback string) string {
	if field == "" {
		return fallback
	}
	if strings.HasPrefix(field, "/") {
		return field
	}
	return "/" + field
}

func advanceTimestamp(ep config.EndpointConfig, s *State, body []byte) (AdvanceResult, error) {
	values := record.ExtractValues(body, ep.RecordPointer, ep.TimestampPointer)
	format := ep.TimestampFormat
	if format == "" {
		format = time.RFC3339
	}
	for _, v := range values {
		ts, err := time.Parse(format, v)
		if err != nil {
			continue
		}
		if ts.After(s.Timestamp.Watermark) {
			s.Timestamp.Watermark = ts
		}
	}
	return AdvanceResult{Advanced: true, SweepDone: true}, nil
}

func advanceChaining(s *State) (AdvanceResult, error) {
	if len(s.Chaining.ParentValues) > 0 {
		consumed := s.Chaining.ParentValues[0]
		s.Chaining.ParentValues = s.Chaining.ParentValues[1:]
		if s.Chaining.EmittedValues == nil {
			s.Chaining.EmittedValues = make(map[string]bool)
		}
		s.Chaining.EmittedValues[consumed] = true
	}
	return AdvanceResult{Advanced: true, SweepDone: len(s.Chaining.ParentValues) == 0}, nil
}

func advanceSnapshot(ep config.EndpointConfig, s *State, body []byte) (AdvanceResult, error) {
	if !s.Snapshot.TotalKnown && ep.TotalPagesPointer != "" {
		if n, ok := record.ResolveInt(body, ep.TotalPagesPointer); ok {
			s.Snapshot.TotalPages = n
			s.Snapshot.TotalKnown = true
		}
	}
	s.Snapshot.Page++
	done := s.Snapshot.TotalKnown && s.Snapshot.Page > s.Snapshot.TotalPages
	return AdvanceResult{Advanced: true, SweepDone: done}, nil
}

// EnqueueChainValues appends newly extracted parent values to a
// chaining child's queue, skipping values already emitted, preserving
// the "children dequeue one value" ordering (FIFO, declaration order).
func EnqueueChainValues(s *State, values []string) {
	if s.Chaining == nil {
		return
	}
	if s.Chaining.EmittedValues == nil {
		s.Chaining.EmittedValues = make(map[string]bool)
	}
	for _, v := range values {
		if s.Chaining.EmittedValues[v] {
			continue
		}
		s.Chaining.ParentValues = append(s.Chaining.ParentValues, v)
	}
}
