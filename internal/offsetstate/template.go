package offsetstate

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/r3e-network/http-ingest-connector/internal/config"
)

// TemplateVars carries the values substituted into a path template in
// addition to the state-derived ${offset}/${cursor}/${parent_value},
// plus the date/time formatting and environment-lookup behavior
// configured under template.*.
type TemplateVars struct {
	Named      map[string]string
	EnvEnabled bool
	DateFormat string
	TimeFormat string
}

// VarsFromConfig builds TemplateVars from the worker's global template
// configuration.
func VarsFromConfig(cfg *config.WorkerConfig) TemplateVars {
	dateFmt := cfg.TemplateDateFormat
	if dateFmt == "" {
		dateFmt = "2006-01-02"
	}
	timeFmt := cfg.TemplateTimeFormat
	if timeFmt == "" {
		timeFmt = "15:04:05"
	}
	return TemplateVars{
		Named:      cfg.TemplateVariables,
		EnvEnabled: cfg.TemplateEnvEnabled,
		DateFormat: dateFmt,
		TimeFormat: timeFmt,
	}
}

// Substitute expands ${offset}, ${cursor}, ${parent_value}, ${date},
// ${time}, named template variables, and (when enabled) ${env:NAME}
// placeholders in tmpl.
func Substitute(tmpl string, s *State, vars TemplateVars) string {
	out := tmpl
	now := time.Now().UTC()

	replacements := map[string]string{
		"${date}": now.Format(vars.DateFormat),
		"${time}": now.Format(vars.TimeFormat),
	}

	switch s.Mode {
	case config.OffsetModeSimpleIncrementing:
		if s.SimpleCounter != nil {
			replacements["${offset}"] = formatInt(s.SimpleCounter.Value)
		}
	case config.OffsetModeCursorPagination:
		if s.Cursor != nil {
			replacements["${cursor}"] = s.Cursor.Token
			replacements["${offset}"] = s.Cursor.Token
		}
	case config.OffsetModeSnapshotPagination:
		if s.Snapshot != nil {
			replacements["${offset}"] = formatInt(int64(s.Snapshot.Page))
		}
	case config.OffsetModeChaining:
		if s.Chaining != nil && len(s.Chaining.ParentValues) > 0 {
			replacements["${parent_value}"] = s.Chaining.ParentValues[0]
		}
	}

	for k, v := range replacements {
		out = strings.ReplaceAll(out, k, v)
	}
	for name, value := range vars.Named {
		out = strings.ReplaceAll(out, "${"+name+"}", value)
	}
	if vars.EnvEnabled {
		out = substituteEnv(out)
	}
	return out
}

// SubstituteParentValue expands only ${parent_value} to value, used by
// the chaining engine when forming a child request for a specific
// dequeued value rather than the head of the state's own queue.
func SubstituteParentValue(tmpl, value string) string {
	return strings.ReplaceAll(tmpl, "${parent_value}", value)
}

func substituteEnv(s string) string {
	for {
		start := strings.Index(s, "${env:")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		end += start
		name := s[start+len("${env:") : end]
		s = s[:start] + os.Getenv(name) + s[end+1:]
	}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
