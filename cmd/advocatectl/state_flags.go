package main

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simp-lee/advocatedir/internal/table"
)

// stateFlags are the browsing controls shared by list and browse. They are
// layered over --query, which takes the same form as the shareable URL.
type stateFlags struct {
	query       string
	page        int
	pageSize    int
	search      string
	cities      []uint
	degrees     []uint
	specialties []uint
	areaCodes   []string
	minExp      int
	maxExp      int
	sort        string
	dir         string
}

func (f *stateFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.query, "query", "", `URL query to start from, e.g. "page=2&cities=1,4"`)
	fl.IntVar(&f.page, "page", table.DefaultPage, "page number")
	fl.IntVar(&f.pageSize, "page-size", table.DefaultPageSize, "rows per page")
	fl.StringVarP(&f.search, "search", "s", "", "name search")
	fl.UintSliceVar(&f.cities, "city", nil, "city ids")
	fl.UintSliceVar(&f.degrees, "degree", nil, "degree ids")
	fl.UintSliceVar(&f.specialties, "specialty", nil, "specialty ids")
	fl.StringSliceVar(&f.areaCodes, "area-code", nil, "three-digit phone area codes")
	fl.IntVar(&f.minExp, "min-exp", 0, "minimum years of experience")
	fl.IntVar(&f.maxExp, "max-exp", 0, "maximum years of experience")
	fl.StringVar(&f.sort, "sort", "", "sort column: firstName, lastName, city, degree, yearsOfExperience, createdAt")
	fl.StringVar(&f.dir, "dir", "", "sort direction: asc or desc")
}

// state merges the explicitly set flags over --query.
func (f *stateFlags) state(cmd *cobra.Command) (table.State, error) {
	v, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(f.query), "?"))
	if err != nil {
		return table.State{}, err
	}

	changed := cmd.Flags().Changed
	setInt := func(flag, key string, n int) {
		if changed(flag) {
			v.Set(key, strconv.Itoa(n))
		}
	}
	setIDs := func(flag, key string, ids []uint) {
		if changed(flag) {
			parts := make([]string, len(ids))
			for i, id := range ids {
				parts[i] = strconv.FormatUint(uint64(id), 10)
			}
			v.Set(key, strings.Join(parts, ","))
		}
	}

	setInt("page", "page", f.page)
	setInt("page-size", "pageSize", f.pageSize)
	if changed("search") {
		v.Set("search", f.search)
	}
	setIDs("city", "cities", f.cities)
	setIDs("degree", "degrees", f.degrees)
	setIDs("specialty", "specialties", f.specialties)
	if changed("area-code") {
		v.Set("areaCodes", strings.Join(f.areaCodes, ","))
	}
	setInt("min-exp", "minExp", f.minExp)
	setInt("max-exp", "maxExp", f.maxExp)
	if changed("sort") {
		v.Set("sort", f.sort)
	}
	if changed("dir") {
		v.Set("sortDir", f.dir)
	}
	return table.ParseQuery(v), nil
}
