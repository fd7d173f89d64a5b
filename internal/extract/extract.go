// Package extract turns an artifact plus a domain's extraction template
// into an ordered set of stable-ID claims.
//
// Extraction is a pure transformation: no side effects beyond the returned
// claims, and identical input yields identical claim IDs across repeated
// calls. An empty claim set is an explicit failure, never a silent
// "nothing to verify".
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"veriloop/internal/claim"
)

// defaultPattern matches lines of the form "claim: <statement>" when a
// domain's template declares no patterns of its own.
const defaultPattern = `(?i)^\s*claim:\s*(.+)$`

// Template holds a domain's claim-extraction rules as written in its
// registry record. Each pattern is a regular expression applied per line;
// the first capture group, when present, becomes the claim statement.
type Template struct {
	ClaimPatterns []string `yaml:"claim_patterns" json:"claim_patterns"`
}

// Compiled is a template with its patterns compiled once at registration.
type Compiled struct {
	patterns []*regexp.Regexp
}

// Compile validates and compiles the template's patterns. A malformed
// pattern is a configuration error, caught before any run begins.
func (t Template) Compile() (*Compiled, error) {
	raw := t.ClaimPatterns
	if len(raw) == 0 {
		raw = []string{defaultPattern}
	}
	compiled := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: claim pattern %q: %v", claim.ErrConfiguration, p, err)
		}
		compiled = append(compiled, re)
	}
	return &Compiled{patterns: compiled}, nil
}

// Extractor derives claims from artifacts.
type Extractor struct {
	logger *zap.Logger
}

// New creates an extractor. A nil logger defaults to a no-op logger.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract scans the artifact line by line and emits one claim per pattern
// match, in artifact order. Claim IDs are derived from domain, statement,
// and match ordinal, so duplicate statements stay distinguishable and the
// same artifact always yields the same ID set.
func (e *Extractor) Extract(artifact claim.Artifact, domainID string, tmpl *Compiled, iteration int) ([]claim.Claim, error) {
	if tmpl == nil {
		var err error
		tmpl, err = Template{}.Compile()
		if err != nil {
			return nil, err
		}
	}

	var claims []claim.Claim
	lines := strings.Split(artifact.Content, "\n")
	for lineNo, line := range lines {
		for _, re := range tmpl.patterns {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			statement := m[0]
			if len(m) > 1 && m[1] != "" {
				statement = strings.TrimSpace(m[1])
			}
			claims = append(claims, claim.Claim{
				ID:                   claim.DeriveID(domainID, statement, len(claims)),
				Domain:               domainID,
				Statement:            statement,
				EvidenceRef:          fmt.Sprintf("line:%d", lineNo+1),
				ExtractedAtIteration: iteration,
			})
			break
		}
	}

	if len(claims) == 0 {
		return nil, fmt.Errorf("%w: domain %s, artifact v%d", claim.ErrExtractionFailure, domainID, artifact.Version)
	}

	e.logger.Debug("claims extracted",
		zap.String("domain", domainID),
		zap.Int("artifact_version", artifact.Version),
		zap.Int("claims", len(claims)))
	return claims, nil
}

// Merge appends extra claims to base, dropping duplicates by ID while
// preserving order. Used to fold a verifier's own extracted claims into
// the template-driven set.
func Merge(base, extra []claim.Claim) []claim.Claim {
	seen := make(map[string]bool, len(base))
	merged := make([]claim.Claim, 0, len(base)+len(extra))
	for _, c := range base {
		if !seen[c.ID] {
			seen[c.ID] = true
			merged = append(merged, c)
		}
	}
	for _, c := range extra {
		if !seen[c.ID] {
			seen[c.ID] = true
			merged = append(merged, c)
		}
	}
	return merged
}
