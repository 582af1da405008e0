// Package sqlguard statically validates generated SQL against policy
// before anything touches the database. Checks are structural, over a
// token stream; nothing here ever executes a statement.
package sqlguard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/queryloom/queryloom/internal/schema"
)

// Rejection kinds. The full reason string (kind plus offending object)
// is fed verbatim into the repair prompt, so it must stay precise.
const (
	KindEmptyStatement     = "EMPTY_STATEMENT"
	KindNotReadOnly        = "NOT_READ_ONLY"
	KindMultipleStatements = "MULTIPLE_STATEMENTS"
	KindForbiddenKeyword   = "FORBIDDEN_KEYWORD"
	KindDisallowedObject   = "DISALLOWED_OBJECT"
)

type Policy struct {
	Allowed schema.AllowedObjects
	MaxRows int
}

type Result struct {
	OK     bool
	Kind   string
	Detail string
}

// Reason renders the machine-actionable rejection string, e.g.
// "DISALLOWED_OBJECT: orders.internal_cost".
func (r Result) Reason() string {
	if r.OK {
		return ""
	}
	if r.Detail == "" {
		return r.Kind
	}
	return r.Kind + ": " + r.Detail
}

func pass() Result {
	return Result{OK: true}
}

func reject(kind, detail string) Result {
	return Result{Kind: kind, Detail: detail}
}

// Statements that write, define, or escalate. UPDATE also covers the
// FOR UPDATE lock clause, which a read-only pipeline has no use for.
var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {}, "alter": {},
	"truncate": {}, "create": {}, "grant": {}, "revoke": {}, "copy": {},
	"merge": {}, "call": {}, "execute": {}, "vacuum": {}, "into": {},
	"set": {}, "reset": {}, "listen": {}, "notify": {},
}

// Validate checks one generated statement against policy. An empty
// allowed set rejects every table reference: no schema context means
// nothing is permitted.
func Validate(sqlText string, policy Policy) Result {
	tokens := lex(sqlText)
	tokens = trimTrailingSemicolons(tokens)
	if len(tokens) == 0 {
		return reject(KindEmptyStatement, "")
	}

	for _, tok := range tokens {
		if tok.kind == tokenSymbol && tok.text == ";" {
			return reject(KindMultipleStatements, "only one statement per request")
		}
	}

	first := tokens[0]
	if !first.keywordIs("select") && !first.keywordIs("with") {
		return reject(KindNotReadOnly, strings.ToUpper(first.text))
	}

	for _, tok := range tokens {
		if tok.kind != tokenWord {
			continue
		}
		word := strings.ToLower(tok.text)
		if _, forbidden := forbiddenKeywords[word]; !forbidden {
			continue
		}
		// A word the schema context spells out as a table or column
		// (e.g. a column named "set") is data, not a statement keyword.
		// The read-only verb check above still rejects it in statement
		// position.
		if policy.Allowed.HasColumn(word) || policy.Allowed.HasTable(word) {
			continue
		}
		return reject(KindForbiddenKeyword, strings.ToUpper(tok.text))
	}

	cteNames := collectCTENames(tokens)
	if result := checkTableRefs(tokens, policy.Allowed, cteNames); !result.OK {
		return result
	}
	if result := checkQualifiedColumns(tokens, policy.Allowed); !result.OK {
		return result
	}
	return pass()
}

// EnsureLimit is the single deterministic row-limit enforcement point.
// A statement without a top-level LIMIT gets one appended; an explicit
// LIMIT above max, or an unbounded one (LIMIT ALL), is capped by
// wrapping the statement in a subquery. The clause is appended on its
// own line so a trailing line comment cannot absorb it.
func EnsureLimit(sqlText string, max int) string {
	trimmed := strings.TrimRight(strings.TrimSpace(sqlText), "; \t\n")
	if max <= 0 {
		return trimmed
	}

	limit, found, bounded := topLevelLimit(trimmed)
	if !found {
		return fmt.Sprintf("%s\nLIMIT %d", trimmed, max)
	}
	if !bounded || limit > max {
		return fmt.Sprintf("SELECT * FROM (%s\n) AS q LIMIT %d", trimmed, max)
	}
	return trimmed
}

// topLevelLimit reports whether the statement carries a LIMIT clause at
// parenthesis depth zero, and its numeric value when it has one. A
// LIMIT ALL or non-numeric argument is found but unbounded.
func topLevelLimit(sqlText string) (limit int, found, bounded bool) {
	tokens := lex(sqlText)
	depth := 0
	for i, tok := range tokens {
		if tok.kind == tokenSymbol {
			switch tok.text {
			case "(":
				depth++
			case ")":
				depth--
			}
			continue
		}
		if depth == 0 && tok.keywordIs("limit") && i+1 < len(tokens) {
			next := tokens[i+1]
			if next.kind == tokenNumber {
				value, err := strconv.Atoi(next.text)
				if err == nil {
					return value, true, true
				}
			}
			return 0, true, false
		}
	}
	return 0, false, false
}

// collectCTENames gathers the names introduced by a WITH clause so the
// main query may reference them like tables.
func collectCTENames(tokens []token) map[string]struct{} {
	names := map[string]struct{}{}
	if len(tokens) == 0 || !tokens[0].keywordIs("with") {
		return names
	}

	depth := 0
	expectName := true
	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.kind == tokenSymbol {
			switch tok.text {
			case "(":
				depth++
			case ")":
				depth--
			case ",":
				if depth == 0 {
					expectName = true
				}
			}
			continue
		}
		if depth != 0 {
			continue
		}
		if tok.keywordIs("recursive") {
			continue
		}
		if tok.keywordIs("select") {
			break
		}
		if expectName && tok.isIdent() {
			names[strings.ToLower(tok.identText())] = struct{}{}
			expectName = false
		}
	}
	return names
}

// Keywords that terminate a FROM list at its own nesting depth.
var fromListTerminators = map[string]struct{}{
	"where": {}, "group": {}, "having": {}, "order": {}, "limit": {},
	"offset": {}, "union": {}, "intersect": {}, "except": {}, "window": {},
	"on": {}, "using": {},
}

// checkTableRefs verifies every identifier referenced as a table (after
// FROM or JOIN, including comma-separated FROM lists) against the
// allowed set or the statement's own CTE names. Parentheses opened by
// anything other than a subquery are treated as expression context, so
// extract(x FROM col) and substring(x FROM 1) do not look like table
// references.
func checkTableRefs(tokens []token, allowed schema.AllowedObjects, cteNames map[string]struct{}) Result {
	type frame struct {
		subquery    bool
		fromActive  bool
		expectTable bool
	}
	stack := []frame{{subquery: true}}
	top := func() *frame { return &stack[len(stack)-1] }

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if tok.kind == tokenSymbol {
			switch tok.text {
			case "(":
				isSubquery := i+1 < len(tokens) && (tokens[i+1].keywordIs("select") || tokens[i+1].keywordIs("with"))
				top().expectTable = false
				stack = append(stack, frame{subquery: isSubquery})
			case ")":
				if len(stack) > 1 {
					stack = stack[:len(stack)-1]
				}
			case ",":
				if top().fromActive {
					top().expectTable = true
				}
			}
			continue
		}

		if !top().subquery {
			continue
		}

		if tok.keywordIs("from") || tok.keywordIs("join") {
			top().fromActive = true
			top().expectTable = true
			continue
		}
		if tok.kind == tokenWord {
			if _, ends := fromListTerminators[strings.ToLower(tok.text)]; ends {
				top().fromActive = false
				top().expectTable = false
				continue
			}
		}
		if !top().expectTable {
			continue
		}
		if tok.keywordIs("lateral") {
			continue
		}
		if !tok.isIdent() {
			top().expectTable = false
			continue
		}

		name, consumed := readQualifiedName(tokens, i)
		i += consumed - 1
		top().expectTable = false

		// A name followed by '(' is a set-returning function call.
		if i+1 < len(tokens) && tokens[i+1].kind == tokenSymbol && tokens[i+1].text == "(" {
			continue
		}
		if _, isCTE := cteNames[strings.ToLower(name)]; isCTE {
			continue
		}
		if !allowed.HasTable(name) {
			return reject(KindDisallowedObject, name)
		}
	}
	return pass()
}

// checkQualifiedColumns verifies every qualifier.column reference. The
// qualifier may be an alias, so membership is checked on the column
// name, matching how the allow-list is derived.
func checkQualifiedColumns(tokens []token, allowed schema.AllowedObjects) Result {
	for i := 0; i+2 < len(tokens); i++ {
		if !tokens[i].isIdent() {
			continue
		}
		if tokens[i+1].kind != tokenSymbol || tokens[i+1].text != "." {
			continue
		}
		last := tokens[i+2]
		if last.kind == tokenSymbol && last.text == "*" {
			continue
		}
		if !last.isIdent() {
			continue
		}
		// schema.function(...) is not a column reference.
		if i+3 < len(tokens) && tokens[i+3].kind == tokenSymbol && tokens[i+3].text == "(" {
			continue
		}
		qualified, consumed := readQualifiedName(tokens, i)
		if allowed.HasTable(qualified) {
			// schema-qualified table reference, checked elsewhere
			i += consumed - 1
			continue
		}
		column := lastSegment(qualified)
		if !allowed.HasColumn(column) {
			return reject(KindDisallowedObject, qualified)
		}
		i += consumed - 1
	}
	return pass()
}

// readQualifiedName reads an ident(.ident)* chain starting at index i,
// returning the dotted name and the number of tokens consumed.
func readQualifiedName(tokens []token, i int) (string, int) {
	parts := []string{tokens[i].identText()}
	consumed := 1
	for i+consumed+1 < len(tokens) &&
		tokens[i+consumed].kind == tokenSymbol && tokens[i+consumed].text == "." &&
		tokens[i+consumed+1].isIdent() {
		parts = append(parts, tokens[i+consumed+1].identText())
		consumed += 2
	}
	return strings.Join(parts, "."), consumed
}

func lastSegment(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func trimTrailingSemicolons(tokens []token) []token {
	for len(tokens) > 0 {
		last := tokens[len(tokens)-1]
		if last.kind == tokenSymbol && last.text == ";" {
			tokens = tokens[:len(tokens)-1]
			continue
		}
		break
	}
	return tokens
}
