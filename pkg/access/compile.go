package access

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// compiler accumulates positional arguments and table aliases across one
// policy compilation. A fresh compiler is used per top-level query so
// placeholder numbering always starts at $1.
type compiler struct {
	reg    *Registry
	args   []interface{}
	aliasN int
}

func newCompiler(reg *Registry) *compiler {
	return &compiler{reg: reg}
}

// alias allocates the next table alias
func (c *compiler) alias() string {
	c.aliasN++
	return "t" + strconv.Itoa(c.aliasN)
}

// bind appends a query argument and returns its placeholder
func (c *compiler) bind(v interface{}) string {
	c.args = append(c.args, v)
	return "$" + strconv.Itoa(len(c.args))
}

// renderCols qualifies the requested columns with a table alias. No
// columns means all columns.
func renderCols(alias string, cols []string) string {
	if len(cols) == 0 {
		return alias + ".*"
	}
	qualified := make([]string, len(cols))
	for i, col := range cols {
		qualified[i] = alias + "." + col
	}
	return strings.Join(qualified, ", ")
}

// selectBuilder assembles a single SELECT statement
type selectBuilder struct {
	distinct bool
	cols     string
	from     string
	joins    []string
	where    []string
}

func (b *selectBuilder) join(clause string) {
	b.joins = append(b.joins, clause)
	b.distinct = true
}

func (b *selectBuilder) sql() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(b.cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	return sb.String()
}

func compilePublic(c *compiler, e *Entity, cols []string) string {
	alias := c.alias()
	b := &selectBuilder{
		cols: renderCols(alias, cols),
		from: e.Table() + " AS " + alias,
	}
	return b.sql()
}

func (publicPolicy) compile(c *compiler, e *Entity, p Principal, cols []string) (string, error) {
	return compilePublic(c, e, cols), nil
}

func (restrictedPolicy) compile(c *compiler, e *Entity, p Principal, cols []string) (string, error) {
	if p.IsAdmin() {
		return compilePublic(c, e, cols), nil
	}
	alias := c.alias()
	b := &selectBuilder{
		cols:  renderCols(alias, cols),
		from:  e.Table() + " AS " + alias,
		where: []string{"FALSE"},
	}
	return b.sql(), nil
}

// joinRelationship emits the JOIN clause(s) walking one relationship edge
// and returns the alias of the target table.
func joinRelationship(c *compiler, b *selectBuilder, rel Relationship, target *Entity, curAlias string) string {
	targetAlias := c.alias()
	switch rel.Kind {
	case BelongsTo:
		b.join(fmt.Sprintf("JOIN %s AS %s ON %s.id = %s.%s",
			target.Table(), targetAlias, targetAlias, curAlias, rel.LocalColumn))
	case HasMany:
		b.join(fmt.Sprintf("JOIN %s AS %s ON %s.%s = %s.id",
			target.Table(), targetAlias, targetAlias, rel.RemoteColumn, curAlias))
	case ManyToMany:
		joinAlias := c.alias()
		b.join(fmt.Sprintf("JOIN %s AS %s ON %s.%s = %s.id",
			rel.JoinTable, joinAlias, joinAlias, rel.JoinSourceColumn, curAlias))
		b.join(fmt.Sprintf("JOIN %s AS %s ON %s.id = %s.%s",
			target.Table(), targetAlias, targetAlias, joinAlias, rel.JoinTargetColumn))
	}
	return targetAlias
}

func (pol userMatchesPolicy) compile(c *compiler, e *Entity, p Principal, cols []string) (string, error) {
	if p.IsAdmin() {
		return compilePublic(c, e, cols), nil
	}

	rootAlias := c.alias()
	b := &selectBuilder{
		cols: renderCols(rootAlias, cols),
		from: e.Table() + " AS " + rootAlias,
	}

	cur := e
	curAlias := rootAlias
	for _, relName := range pol.path {
		rel, ok := cur.Relationship(relName)
		if !ok {
			return "", fmt.Errorf("entity %q has no relationship %q", cur.Name(), relName)
		}
		target, ok := c.reg.Entity(rel.Target)
		if !ok {
			return "", fmt.Errorf("relationship %q targets unregistered entity %q", relName, rel.Target)
		}
		curAlias = joinRelationship(c, b, rel, target, curAlias)
		cur = target
	}

	b.where = append(b.where, fmt.Sprintf("%s.id = %s", curAlias, c.bind(p.EffectiveUserID())))
	return b.sql(), nil
}

func (selfPolicy) compile(c *compiler, e *Entity, p Principal, cols []string) (string, error) {
	if p.IsAdmin() {
		return compilePublic(c, e, cols), nil
	}
	alias := c.alias()
	b := &selectBuilder{
		cols: renderCols(alias, cols),
		from: e.Table() + " AS " + alias,
	}
	b.where = append(b.where, fmt.Sprintf("%s.id = %s", alias, c.bind(p.EffectiveUserID())))
	return b.sql(), nil
}

func (pol relatedRowsPolicy) compile(c *compiler, e *Entity, p Principal, cols []string) (string, error) {
	rootAlias := c.alias()
	b := &selectBuilder{
		cols: renderCols(rootAlias, cols),
		from: e.Table() + " AS " + rootAlias,
	}

	for _, clause := range pol.clauses {
		rel, ok := e.Relationship(clause.Relationship)
		if !ok {
			return "", fmt.Errorf("entity %q has no relationship %q", e.Name(), clause.Relationship)
		}
		target, ok := c.reg.Entity(rel.Target)
		if !ok {
			return "", fmt.Errorf("relationship %q targets unregistered entity %q", clause.Relationship, rel.Target)
		}
		targetPolicy := target.Policy(clause.Mode)
		if targetPolicy == nil {
			return "", fmt.Errorf("entity %q has no %s policy", target.Name(), clause.Mode)
		}
		// Public related rows impose no restriction on this entity
		if targetPolicy.public() {
			continue
		}

		targetAlias := joinRelationship(c, b, rel, target, rootAlias)
		sub, err := targetPolicy.compile(c, target, p, []string{"id"})
		if err != nil {
			return "", err
		}
		subAlias := c.alias()
		b.join(fmt.Sprintf("JOIN (%s) AS %s ON %s.id = %s.id", sub, subAlias, subAlias, targetAlias))
	}

	return b.sql(), nil
}

func (pol composedPolicy) compile(c *compiler, e *Entity, p Principal, cols []string) (string, error) {
	// Public sub-policies never restrict, so they contribute nothing
	subs := make([]Policy, 0, len(pol.subs))
	for _, s := range pol.subs {
		if s.public() {
			continue
		}
		subs = append(subs, s)
	}
	if len(subs) == 0 {
		return compilePublic(c, e, cols), nil
	}

	rootAlias := c.alias()
	b := &selectBuilder{
		cols: renderCols(rootAlias, cols),
		from: e.Table() + " AS " + rootAlias,
	}

	switch pol.combinator {
	case CombineAnd:
		for _, s := range subs {
			sub, err := s.compile(c, e, p, []string{"id"})
			if err != nil {
				return "", err
			}
			subAlias := c.alias()
			b.join(fmt.Sprintf("JOIN (%s) AS %s ON %s.id = %s.id",
				sub, subAlias, subAlias, rootAlias))
		}
	case CombineOr:
		conds := make([]string, 0, len(subs))
		for _, s := range subs {
			sub, err := s.compile(c, e, p, []string{"id"})
			if err != nil {
				return "", err
			}
			subAlias := c.alias()
			b.join(fmt.Sprintf("LEFT JOIN (%s) AS %s ON %s.id = %s.id",
				sub, subAlias, subAlias, rootAlias))
			conds = append(conds, subAlias+".id IS NOT NULL")
		}
		b.where = append(b.where, "("+strings.Join(conds, " OR ")+")")
	default:
		return "", fmt.Errorf("unknown combinator %d", pol.combinator)
	}

	return b.sql(), nil
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// shiftPlaceholders renumbers $N placeholders by offset so a standalone
// query can be spliced into an outer query's argument list.
func shiftPlaceholders(sql string, offset int) string {
	if offset == 0 {
		return sql
	}
	return placeholderPattern.ReplaceAllStringFunc(sql, func(m string) string {
		n, _ := strconv.Atoi(m[1:])
		return "$" + strconv.Itoa(n+offset)
	})
}

func (pol customPolicy) compile(c *compiler, e *Entity, p Principal, cols []string) (string, error) {
	q, err := pol.fn(e, p)
	if err != nil {
		return "", fmt.Errorf("custom policy for entity %q: %w", e.Name(), err)
	}
	shifted := shiftPlaceholders(q.SQL, len(c.args))
	c.args = append(c.args, q.Args...)

	alias := c.alias()
	b := &selectBuilder{
		cols: renderCols(alias, cols),
		from: "(" + shifted + ") AS " + alias,
	}
	return b.sql(), nil
}
