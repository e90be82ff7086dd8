package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func docWith(fields map[string]Value) Document {
	d := make(Document, len(fields))
	for k, v := range fields {
		d[k] = v
	}
	return d
}

func TestExprEqMatches(t *testing.T) {
	e := Eq("title", String("a"))
	assert.True(t, e.Matches(docWith(map[string]Value{"title": String("a")})))
	assert.False(t, e.Matches(docWith(map[string]Value{"title": String("b")})))
	assert.False(t, e.Matches(docWith(nil)))
}

func TestExprNe(t *testing.T) {
	e := Ne("title", String("a"))
	assert.False(t, e.Matches(docWith(map[string]Value{"title": String("a")})))
	assert.True(t, e.Matches(docWith(map[string]Value{"title": String("b")})))
}

func TestExprComparisons(t *testing.T) {
	doc := docWith(map[string]Value{"count": Int(5)})
	assert.True(t, Gt("count", Int(3)).Matches(doc))
	assert.False(t, Gt("count", Int(5)).Matches(doc))
	assert.True(t, Gte("count", Int(5)).Matches(doc))
	assert.True(t, Lt("count", Int(10)).Matches(doc))
	assert.True(t, Lte("count", Int(5)).Matches(doc))
	assert.False(t, Lt("count", Int(1)).Matches(doc))
}

func TestExprInAndNin(t *testing.T) {
	doc := docWith(map[string]Value{"tag": String("x")})
	assert.True(t, In("tag", String("x"), String("y")).Matches(doc))
	assert.False(t, In("tag", String("y"), String("z")).Matches(doc))
	assert.True(t, Nin("tag", String("y"), String("z")).Matches(doc))
	assert.False(t, Nin("tag", String("x")).Matches(doc))
}

func TestExprExists(t *testing.T) {
	doc := docWith(map[string]Value{"tag": String("x")})
	assert.True(t, Exists("tag").Matches(doc))
	assert.False(t, Exists("missing").Matches(doc))
}

func TestExprAndOrNot(t *testing.T) {
	doc := docWith(map[string]Value{"a": Int(1), "b": Int(2)})

	assert.True(t, And(Eq("a", Int(1)), Eq("b", Int(2))).Matches(doc))
	assert.False(t, And(Eq("a", Int(1)), Eq("b", Int(9))).Matches(doc))

	assert.True(t, Or(Eq("a", Int(9)), Eq("b", Int(2))).Matches(doc))
	assert.False(t, Or(Eq("a", Int(9)), Eq("b", Int(9))).Matches(doc))

	assert.True(t, Not(Eq("a", Int(9))).Matches(doc))
	assert.False(t, Not(Eq("a", Int(1))).Matches(doc))

	assert.True(t, And().Matches(doc))
	assert.False(t, Or().Matches(doc))
}

func TestExprValidate(t *testing.T) {
	assert.NoError(t, And(Eq("a", Int(1)), Or(Exists("b"))).Validate())
	assert.NoError(t, Not(Eq("a", Int(1))).Validate())
}

func TestExprValidateRejectsMalformed(t *testing.T) {
	badNot := Expr{Op: ExprNot, Children: []Expr{Eq("a", Int(1)), Eq("b", Int(2))}}
	assert.Error(t, badNot.Validate())

	badLeaf := Expr{Op: ExprEq, Key: "", Value: Int(1)}
	assert.Error(t, badLeaf.Validate())

	badOp := Expr{Op: ExprOp("bogus")}
	assert.Error(t, badOp.Validate())
}

func TestExprNestedDottedPath(t *testing.T) {
	nested := docWith(map[string]Value{
		"meta": Object(Document{"lang": String("go")}),
	})
	assert.True(t, Eq("meta.lang", String("go")).Matches(nested))
	assert.False(t, Eq("meta.lang", String("rust")).Matches(nested))
}
