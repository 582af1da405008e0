package sqlguard

import (
	"strings"
	"testing"

	"github.com/queryloom/queryloom/internal/schema"
)

func ordersPolicy() Policy {
	ctx := schema.Context{
		{
			Object: "orders",
			Kind:   "table",
			Columns: []schema.Column{
				{Name: "id"}, {Name: "created_at"}, {Name: "amount"},
			},
		},
	}
	return Policy{Allowed: schema.Derive(ctx), MaxRows: 200}
}

func TestValidateAcceptsSelectOnAllowedObjects(t *testing.T) {
	queries := []string{
		"SELECT id, created_at FROM orders ORDER BY created_at DESC LIMIT 5",
		"select o.amount from orders o where o.created_at > now() - interval '7 days' limit 10",
		"SELECT count(*) FROM orders LIMIT 1",
		`SELECT "id" FROM "orders" LIMIT 1`,
		"WITH recent AS (SELECT id, amount FROM orders LIMIT 50) SELECT * FROM recent",
		"SELECT extract(month FROM created_at), sum(amount) FROM orders GROUP BY 1 LIMIT 12",
	}
	policy := ordersPolicy()
	for _, q := range queries {
		if result := Validate(q, policy); !result.OK {
			t.Fatalf("Validate(%q) rejected: %s", q, result.Reason())
		}
	}
}

func TestValidateRejectsNonReadStatements(t *testing.T) {
	policy := ordersPolicy()

	result := Validate("DELETE FROM orders", policy)
	if result.OK || result.Kind != KindNotReadOnly {
		t.Fatalf("Validate(DELETE) = %+v", result)
	}
	if !strings.HasPrefix(result.Reason(), KindNotReadOnly) {
		t.Fatalf("Reason() = %q", result.Reason())
	}

	for _, q := range []string{
		"UPDATE orders SET amount = 0",
		"INSERT INTO orders VALUES (1)",
		"DROP TABLE orders",
		"TRUNCATE orders",
	} {
		if result := Validate(q, policy); result.OK {
			t.Fatalf("Validate(%q) passed, want rejection", q)
		}
	}
}

func TestValidateRejectsEmbeddedWriteKeyword(t *testing.T) {
	result := Validate("SELECT id FROM orders FOR UPDATE", ordersPolicy())
	if result.OK || result.Kind != KindForbiddenKeyword {
		t.Fatalf("result = %+v", result)
	}
}

func TestValidateAllowsKeywordLikeColumnFromSchemaContext(t *testing.T) {
	ctx := schema.Context{
		{
			Object: "features",
			Kind:   "table",
			Columns: []schema.Column{
				{Name: "set"}, {Name: "copy"}, {Name: "enabled"},
			},
		},
	}
	policy := Policy{Allowed: schema.Derive(ctx), MaxRows: 200}

	for _, q := range []string{
		"SELECT set FROM features LIMIT 5",
		"SELECT f.set, f.copy FROM features f WHERE f.enabled LIMIT 5",
	} {
		if result := Validate(q, policy); !result.OK {
			t.Fatalf("Validate(%q) rejected: %s", q, result.Reason())
		}
	}

	// The same words stay forbidden when the schema context never
	// names them.
	result := Validate("SELECT set FROM orders LIMIT 5", ordersPolicy())
	if result.OK || result.Kind != KindForbiddenKeyword {
		t.Fatalf("result = %+v", result)
	}
}

func TestValidateAllowsForbiddenWordsInsideStrings(t *testing.T) {
	result := Validate("SELECT id FROM orders WHERE status = 'update pending' LIMIT 5", ordersPolicy())
	if !result.OK {
		t.Fatalf("rejected: %s", result.Reason())
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	result := Validate("SELECT id FROM orders; SELECT amount FROM orders", ordersPolicy())
	if result.OK || result.Kind != KindMultipleStatements {
		t.Fatalf("result = %+v", result)
	}
	// A single trailing semicolon is not a second statement.
	if result := Validate("SELECT id FROM orders LIMIT 5;", ordersPolicy()); !result.OK {
		t.Fatalf("trailing semicolon rejected: %s", result.Reason())
	}
}

func TestValidateRejectsDisallowedTable(t *testing.T) {
	result := Validate("SELECT secret FROM vault LIMIT 5", ordersPolicy())
	if result.OK || result.Kind != KindDisallowedObject {
		t.Fatalf("result = %+v", result)
	}
	if result.Reason() != "DISALLOWED_OBJECT: vault" {
		t.Fatalf("Reason() = %q", result.Reason())
	}
}

func TestValidateRejectsDisallowedQualifiedColumn(t *testing.T) {
	result := Validate("SELECT orders.internal_cost FROM orders LIMIT 5", ordersPolicy())
	if result.OK {
		t.Fatal("expected rejection")
	}
	if result.Reason() != "DISALLOWED_OBJECT: orders.internal_cost" {
		t.Fatalf("Reason() = %q", result.Reason())
	}
}

func TestValidateChecksJoinedAndListedTables(t *testing.T) {
	policy := ordersPolicy()
	for _, q := range []string{
		"SELECT o.id FROM orders o JOIN customers c ON c.id = o.id LIMIT 5",
		"SELECT 1 FROM orders, customers LIMIT 5",
		"SELECT 1 FROM (SELECT id FROM orders LIMIT 10) q, customers LIMIT 5",
	} {
		result := Validate(q, policy)
		if result.OK || result.Detail != "customers" {
			t.Fatalf("Validate(%q) = %+v", q, result)
		}
	}
}

func TestValidateChecksSubqueryTables(t *testing.T) {
	result := Validate("SELECT * FROM (SELECT secret FROM vault LIMIT 5) q LIMIT 5", ordersPolicy())
	if result.OK || result.Detail != "vault" {
		t.Fatalf("result = %+v", result)
	}
}

func TestValidateFailClosedOnEmptyAllowedSet(t *testing.T) {
	policy := Policy{Allowed: schema.Derive(schema.Context{}), MaxRows: 200}
	for _, q := range []string{
		"SELECT id FROM orders LIMIT 5",
		"SELECT 1 FROM anything",
		"WITH x AS (SELECT 1 FROM t) SELECT * FROM x",
	} {
		if result := Validate(q, policy); result.OK {
			t.Fatalf("Validate(%q) passed with empty allowed set", q)
		}
	}
}

func TestValidateRejectsEmptyStatement(t *testing.T) {
	for _, q := range []string{"", "   ", ";;", "-- just a comment"} {
		result := Validate(q, ordersPolicy())
		if result.OK || result.Kind != KindEmptyStatement {
			t.Fatalf("Validate(%q) = %+v", q, result)
		}
	}
}

func TestEnsureLimitAppendsWhenMissing(t *testing.T) {
	got := EnsureLimit("SELECT id FROM orders ORDER BY created_at DESC", 200)
	if got != "SELECT id FROM orders ORDER BY created_at DESC\nLIMIT 200" {
		t.Fatalf("EnsureLimit() = %q", got)
	}
}

func TestEnsureLimitSurvivesTrailingLineComment(t *testing.T) {
	got := EnsureLimit("SELECT id FROM orders -- fetch ids", 200)
	if got != "SELECT id FROM orders -- fetch ids\nLIMIT 200" {
		t.Fatalf("EnsureLimit() = %q", got)
	}
	// The appended clause must survive re-lexing, not sit inside the
	// comment.
	limit, found, bounded := topLevelLimit(got)
	if !found || !bounded || limit != 200 {
		t.Fatalf("topLevelLimit(%q) = %d, %t, %t", got, limit, found, bounded)
	}
}

func TestEnsureLimitKeepsExistingLimit(t *testing.T) {
	sql := "SELECT id FROM orders LIMIT 5"
	if got := EnsureLimit(sql, 200); got != sql {
		t.Fatalf("EnsureLimit() = %q", got)
	}
}

func TestEnsureLimitCapsOversizedLimit(t *testing.T) {
	got := EnsureLimit("SELECT id FROM orders LIMIT 100000", 200)
	want := "SELECT * FROM (SELECT id FROM orders LIMIT 100000\n) AS q LIMIT 200"
	if got != want {
		t.Fatalf("EnsureLimit() = %q, want %q", got, want)
	}
}

func TestEnsureLimitCapsLimitAll(t *testing.T) {
	got := EnsureLimit("SELECT id FROM orders LIMIT ALL", 200)
	want := "SELECT * FROM (SELECT id FROM orders LIMIT ALL\n) AS q LIMIT 200"
	if got != want {
		t.Fatalf("EnsureLimit() = %q, want %q", got, want)
	}
	limit, found, bounded := topLevelLimit(got)
	if !found || !bounded || limit != 200 {
		t.Fatalf("topLevelLimit(%q) = %d, %t, %t", got, limit, found, bounded)
	}
}

func TestEnsureLimitIgnoresNestedLimit(t *testing.T) {
	sql := "SELECT * FROM (SELECT id FROM orders LIMIT 10) q"
	got := EnsureLimit(sql, 200)
	if got != sql+"\nLIMIT 200" {
		t.Fatalf("EnsureLimit() = %q", got)
	}
}

func TestEnsureLimitStripsTrailingSemicolon(t *testing.T) {
	got := EnsureLimit("SELECT id FROM orders;", 200)
	if got != "SELECT id FROM orders\nLIMIT 200" {
		t.Fatalf("EnsureLimit() = %q", got)
	}
}

func TestLexSkipsCommentsAndStrings(t *testing.T) {
	tokens := lex("SELECT id -- trailing; comment\nFROM orders /* block; */ WHERE note = 'a;b'")
	for _, tok := range tokens {
		if tok.kind == tokenSymbol && tok.text == ";" {
			t.Fatal("semicolon inside comment or string must not become a token")
		}
	}
}
