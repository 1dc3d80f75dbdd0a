package advocate

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/advocatedir/internal/domain"
)

// likeEscaper escapes LIKE wildcards so user input matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// likeOperator is ILIKE on PostgreSQL. SQLite's LIKE is already
// case-insensitive for ASCII.
func likeOperator(db *gorm.DB) string {
	if isPostgres(db) {
		return "ILIKE"
	}
	return "LIKE"
}

// applyFilters adds the WHERE clause for f to q. Only active advocates are
// ever listed; soft-deleted rows are excluded by GORM itself.
//
// criteria.Match is the in-memory twin of this function.
func applyFilters(q *gorm.DB, f domain.Filters) *gorm.DB {
	q = q.Where("advocates.is_active = ?", true)

	if term := strings.TrimSpace(f.Search); term != "" {
		op := likeOperator(q)
		pattern := containsPattern(term)
		q = q.Where(
			"(advocates.first_name "+op+" ? ESCAPE '\\' OR advocates.last_name "+op+" ? ESCAPE '\\')",
			pattern, pattern,
		)
	}
	if len(f.CityIDs) > 0 {
		q = q.Where("advocates.city_id IN ?", f.CityIDs)
	}
	if len(f.DegreeIDs) > 0 {
		q = q.Where("advocates.degree_id IN ?", f.DegreeIDs)
	}
	if len(f.SpecialtyIDs) > 0 {
		q = q.Where(`EXISTS (SELECT 1 FROM advocate_specialties x
WHERE x.advocate_id = advocates.id AND x.specialty_id IN ?)`, f.SpecialtyIDs)
	}
	// Phone numbers are stored as bare digits, so the area code is a prefix.
	if len(f.AreaCodes) > 0 {
		q = q.Where("SUBSTR(advocates.phone_number, 1, 3) IN ?", f.AreaCodes)
	}
	if f.MinExperience != nil {
		q = q.Where("advocates.years_of_experience >= ?", *f.MinExperience)
	}
	if f.MaxExperience != nil {
		q = q.Where("advocates.years_of_experience <= ?", *f.MaxExperience)
	}
	return q
}

// sortColumns maps API sort columns to SQL columns. City and degree sort by
// the joined row's name, which requires the City and Degree joins.
var sortColumns = map[domain.SortColumn]clause.Column{
	domain.SortFirstName:         {Table: "advocates", Name: "first_name"},
	domain.SortLastName:          {Table: "advocates", Name: "last_name"},
	domain.SortCity:              {Table: "City", Name: "name"},
	domain.SortDegree:            {Table: "Degree", Name: "name"},
	domain.SortYearsOfExperience: {Table: "advocates", Name: "years_of_experience"},
	domain.SortCreatedAt:         {Table: "advocates", Name: "created_at"},
}

// applySort orders by the requested column with id as a tiebreaker, so pages
// never overlap or skip rows.
func applySort(q *gorm.DB, s domain.Sort) *gorm.DB {
	s = s.Normalize()
	desc := s.Direction == domain.SortDesc
	return q.
		Order(clause.OrderByColumn{Column: sortColumns[s.Column], Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "advocates", Name: "id"}, Desc: desc})
}

// searchDocument is the text a full-text query runs against: name, city,
// degree and every specialty. Relations are read through correlated
// subqueries so the expression works with or without the relation joins.
func searchDocument(db *gorm.DB) string {
	agg := "group_concat(s.name, ' ')"
	if isPostgres(db) {
		agg = "string_agg(s.name, ' ')"
	}
	return `coalesce(advocates.first_name, '') || ' ' || coalesce(advocates.last_name, '') || ' ' ||
coalesce((SELECT c.name FROM cities c WHERE c.id = advocates.city_id), '') || ' ' ||
coalesce((SELECT d.name FROM degrees d WHERE d.id = advocates.degree_id), '') || ' ' ||
coalesce((SELECT ` + agg + ` FROM advocate_specialties x JOIN specialties s ON s.id = x.specialty_id
WHERE x.advocate_id = advocates.id), '')`
}

// searchClauses builds the match condition and the ranking expression for
// tokens. Every token must match. PostgreSQL uses phrase queries so quoted
// multi-word tokens keep their word order; other dialects fall back to
// substring matching with name hits ranked above relation hits.
func searchClauses(db *gorm.DB, tokens []string) (where clause.Expr, rank clause.Expr) {
	doc := searchDocument(db)

	if isPostgres(db) {
		parts := make([]string, len(tokens))
		vars := make([]any, len(tokens))
		for i, tok := range tokens {
			parts[i] = "phraseto_tsquery('english', ?)"
			vars[i] = strings.ToLower(tok)
		}
		query := "(" + strings.Join(parts, " && ") + ")"
		vector := "to_tsvector('english', " + doc + ")"
		where = clause.Expr{SQL: vector + " @@ " + query, Vars: vars}
		rank = clause.Expr{SQL: "ts_rank(" + vector + ", " + query + ") DESC, advocates.id ASC", Vars: vars}
		return where, rank
	}

	conds := make([]string, len(tokens))
	scores := make([]string, len(tokens))
	var whereVars, rankVars []any
	for i, tok := range tokens {
		pattern := containsPattern(strings.ToLower(tok))
		conds[i] = "LOWER(" + doc + ") LIKE ? ESCAPE '\\'"
		whereVars = append(whereVars, pattern)
		scores[i] = "(CASE WHEN LOWER(advocates.first_name || ' ' || advocates.last_name) LIKE ? ESCAPE '\\' THEN 2 ELSE 1 END)"
		rankVars = append(rankVars, pattern)
	}
	where = clause.Expr{SQL: strings.Join(conds, " AND "), Vars: whereVars}
	rank = clause.Expr{SQL: "(" + strings.Join(scores, " + ") + ") DESC, advocates.id ASC", Vars: rankVars}
	return where, rank
}
