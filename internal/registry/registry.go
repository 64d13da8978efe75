// Package registry holds the data-driven lookup tables used by the price
// discovery engine: brands, product categories, units, materials, retailer
// URL shapes, the source block-list and excluded categories.
package registry

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTables []byte

// Brand is a known manufacturer
type Brand struct {
	Name       string   `yaml:"name"`
	Aliases    []string `yaml:"aliases"`
	Category   string   `yaml:"category"`
	Alternates []string `yaml:"alternates"`
}

// Category is a product type in the taxonomy with its typical price range
type Category struct {
	Name  string     `yaml:"name"`
	Group string     `yaml:"group"`
	Terms []string   `yaml:"terms"`
	Price [2]float64 `yaml:"price"`
}

// Midpoint returns the middle of the configured price range
func (c *Category) Midpoint() float64 {
	return (c.Price[0] + c.Price[1]) / 2
}

// SizeClass is an upper-bounded capacity class for a unit
type SizeClass struct {
	Name string  `yaml:"name"`
	Max  float64 `yaml:"max"`
}

// Unit is a capacity/size unit with its extraction pattern and class boundaries
type Unit struct {
	Name      string      `yaml:"name"`
	Pattern   string      `yaml:"pattern"`
	Reference float64     `yaml:"reference"`
	MaxDelta  float64     `yaml:"max_delta"`
	Classes   []SizeClass `yaml:"classes"`

	re *regexp.Regexp
}

// Regexp returns the compiled extraction pattern
func (u *Unit) Regexp() *regexp.Regexp {
	return u.re
}

// ClassOf returns the index of the class the value falls in
func (u *Unit) ClassOf(value float64) int {
	for i, c := range u.Classes {
		if value <= c.Max {
			return i
		}
	}
	return len(u.Classes) - 1
}

// SizeWord is a ranked size class word such as "mini" or "large"
type SizeWord struct {
	Word string `yaml:"word"`
	Rank int    `yaml:"rank"`
}

// Material is a material keyword group with its price factor
type Material struct {
	Name   string   `yaml:"name"`
	Terms  []string `yaml:"terms"`
	Factor float64  `yaml:"factor"`
}

// Blocklist describes untrusted seller/source strings
type Blocklist struct {
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

// Exclusions describes categories that are never priced
type Exclusions struct {
	Financing    []string `yaml:"financing"`
	PhoneTerms   []string `yaml:"phone_terms"`
	PhoneLock    []string `yaml:"phone_lock"`
	PreOwned     []string `yaml:"pre_owned"`
	LuxuryBrands []string `yaml:"luxury_brands"`
}

// Rewrite turns a catalog/search path into a product path
type Rewrite struct {
	Match   string `yaml:"match"`
	Replace string `yaml:"replace"`

	re *regexp.Regexp
}

// Retailer is a known retailer and the shape of its product URLs
type Retailer struct {
	Name      string    `yaml:"name"`
	Domain    string    `yaml:"domain"`
	Aliases   []string  `yaml:"aliases"`
	Product   []string  `yaml:"product"`
	Search    []string  `yaml:"search"`
	Rewrites  []Rewrite `yaml:"rewrites"`
	Selectors []string  `yaml:"selectors"`

	product []*regexp.Regexp
	search  []*regexp.Regexp
}

// Registry is the full set of lookup tables
type Registry struct {
	StopWords        []string           `yaml:"stop_words"`
	Brands           []Brand            `yaml:"brands"`
	Categories       []Category         `yaml:"categories"`
	GroupBasePrices  map[string]float64 `yaml:"group_base_prices"`
	DefaultBasePrice float64            `yaml:"default_base_price"`
	Units            []Unit             `yaml:"units"`
	SizeWords        []SizeWord         `yaml:"size_words"`
	Materials        []Material         `yaml:"materials"`
	Colors           []string           `yaml:"colors"`
	Finishes         []string           `yaml:"finishes"`
	NegativeSites    []string           `yaml:"negative_sites"`
	Blocklist        Blocklist          `yaml:"blocklist"`
	Adjacent         []string           `yaml:"adjacent"`
	Exclusions       Exclusions         `yaml:"exclusions"`
	Retailers        []Retailer         `yaml:"retailers"`

	stopWords    map[string]bool
	blockTerms   []*Term
	blockRegexps []*regexp.Regexp
	adjacent     []*regexp.Regexp
	exclusions   compiledExclusions
}

type compiledExclusions struct {
	financing  []*regexp.Regexp
	phoneTerms []*regexp.Regexp
	phoneLock  []*regexp.Regexp
	preOwned   []*regexp.Regexp
	luxury     []*regexp.Regexp
}

// Default returns the embedded tables, compiled
func Default() (*Registry, error) {
	return Parse(defaultTables)
}

// MustDefault is Default for tests and package initialisation
func MustDefault() *Registry {
	reg, err := Default()
	if err != nil {
		panic(err)
	}
	return reg
}

// Parse decodes and compiles a YAML table set
func Parse(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if err := reg.compile(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Load returns the embedded tables with the file at path layered on top.
// An empty path returns the defaults.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var base, overlay Registry
	if err := yaml.Unmarshal(defaultTables, &base); err != nil {
		return nil, fmt.Errorf("decode default registry: %w", err)
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}

	base.merge(&overlay)
	if err := base.compile(); err != nil {
		return nil, err
	}
	return &base, nil
}

// merge layers overlay onto r; named entries with the same name are replaced
func (r *Registry) merge(o *Registry) {
	r.StopWords = append(r.StopWords, o.StopWords...)
	r.Colors = append(r.Colors, o.Colors...)
	r.Finishes = append(r.Finishes, o.Finishes...)
	r.NegativeSites = append(r.NegativeSites, o.NegativeSites...)
	r.SizeWords = append(r.SizeWords, o.SizeWords...)
	r.Adjacent = append(r.Adjacent, o.Adjacent...)
	r.Blocklist.Keywords = append(r.Blocklist.Keywords, o.Blocklist.Keywords...)
	r.Blocklist.Patterns = append(r.Blocklist.Patterns, o.Blocklist.Patterns...)
	r.Exclusions.Financing = append(r.Exclusions.Financing, o.Exclusions.Financing...)
	r.Exclusions.PhoneTerms = append(r.Exclusions.PhoneTerms, o.Exclusions.PhoneTerms...)
	r.Exclusions.PhoneLock = append(r.Exclusions.PhoneLock, o.Exclusions.PhoneLock...)
	r.Exclusions.PreOwned = append(r.Exclusions.PreOwned, o.Exclusions.PreOwned...)
	r.Exclusions.LuxuryBrands = append(r.Exclusions.LuxuryBrands, o.Exclusions.LuxuryBrands...)

	if o.DefaultBasePrice > 0 {
		r.DefaultBasePrice = o.DefaultBasePrice
	}
	if r.GroupBasePrices == nil {
		r.GroupBasePrices = map[string]float64{}
	}
	for k, v := range o.GroupBasePrices {
		r.GroupBasePrices[k] = v
	}

	for _, b := range o.Brands {
		r.Brands = replaceOrAppend(r.Brands, b, func(x Brand) string { return x.Name })
	}
	for _, c := range o.Categories {
		r.Categories = replaceOrAppend(r.Categories, c, func(x Category) string { return x.Name })
	}
	for _, u := range o.Units {
		r.Units = replaceOrAppend(r.Units, u, func(x Unit) string { return x.Name })
	}
	for _, m := range o.Materials {
		r.Materials = replaceOrAppend(r.Materials, m, func(x Material) string { return x.Name })
	}
	for _, rt := range o.Retailers {
		r.Retailers = replaceOrAppend(r.Retailers, rt, func(x Retailer) string { return x.Domain })
	}
}

func replaceOrAppend[T any](items []T, item T, key func(T) string) []T {
	k := strings.ToLower(key(item))
	for i := range items {
		if strings.ToLower(key(items[i])) == k {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func (r *Registry) compile() error {
	r.stopWords = make(map[string]bool, len(r.StopWords))
	for _, w := range r.StopWords {
		r.stopWords[strings.ToLower(w)] = true
	}

	for i := range r.Units {
		re, err := regexp.Compile("(?i)" + r.Units[i].Pattern)
		if err != nil {
			return fmt.Errorf("unit %s: %w", r.Units[i].Name, err)
		}
		r.Units[i].re = re
		if r.Units[i].MaxDelta <= 0 {
			r.Units[i].MaxDelta = 0.3
		}
		if len(r.Units[i].Classes) == 0 {
			r.Units[i].Classes = []SizeClass{{Name: "standard", Max: 1e12}}
		}
	}

	// Longest size words first so "extra large" wins over "large".
	sort.SliceStable(r.SizeWords, func(i, j int) bool {
		return len(r.SizeWords[i].Word) > len(r.SizeWords[j].Word)
	})

	r.blockTerms = r.blockTerms[:0]
	for _, k := range r.Blocklist.Keywords {
		r.blockTerms = append(r.blockTerms, NewTerm(k))
	}

	var err error
	if r.blockRegexps, err = compileAll("blocklist", r.Blocklist.Patterns); err != nil {
		return err
	}
	if r.adjacent, err = compileAll("adjacent", r.Adjacent); err != nil {
		return err
	}
	if r.exclusions.financing, err = compileAll("financing", r.Exclusions.Financing); err != nil {
		return err
	}
	if r.exclusions.phoneTerms, err = compileAll("phone_terms", r.Exclusions.PhoneTerms); err != nil {
		return err
	}
	if r.exclusions.phoneLock, err = compileAll("phone_lock", r.Exclusions.PhoneLock); err != nil {
		return err
	}
	if r.exclusions.preOwned, err = compileAll("pre_owned", r.Exclusions.PreOwned); err != nil {
		return err
	}
	if r.exclusions.luxury, err = compileAll("luxury_brands", r.Exclusions.LuxuryBrands); err != nil {
		return err
	}

	for i := range r.Retailers {
		rt := &r.Retailers[i]
		rt.Domain = strings.ToLower(strings.TrimPrefix(rt.Domain, "www."))
		if rt.product, err = compileAll(rt.Domain+" product", rt.Product); err != nil {
			return err
		}
		if rt.search, err = compileAll(rt.Domain+" search", rt.Search); err != nil {
			return err
		}
		for j := range rt.Rewrites {
			re, err := regexp.Compile(rt.Rewrites[j].Match)
			if err != nil {
				return fmt.Errorf("%s rewrite: %w", rt.Domain, err)
			}
			rt.Rewrites[j].re = re
		}
	}

	return nil
}

func compileAll(name string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%s pattern %q: %w", name, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// IsStopWord reports whether w carries no search signal
func (r *Registry) IsStopWord(w string) bool {
	return r.stopWords[strings.ToLower(w)]
}

// BlockTerms returns the compiled block-list keywords
func (r *Registry) BlockTerms() []*Term {
	return r.blockTerms
}

// BlockPatterns returns the compiled block-list patterns
func (r *Registry) BlockPatterns() []*regexp.Regexp {
	return r.blockRegexps
}

// AdjacentPatterns returns the compiled marketplace-adjacent patterns
func (r *Registry) AdjacentPatterns() []*regexp.Regexp {
	return r.adjacent
}

// ExclusionReason returns a non-empty reason when the text describes an item
// category that must not be priced.
func (r *Registry) ExclusionReason(text string) string {
	if anyMatch(r.exclusions.financing, text) {
		return "financed or payment-plan purchase"
	}
	if anyMatch(r.exclusions.phoneTerms, text) && anyMatch(r.exclusions.phoneLock, text) {
		return "carrier-locked or prepaid phone"
	}
	if anyMatch(r.exclusions.preOwned, text) && anyMatch(r.exclusions.luxury, text) {
		return "pre-owned luxury or designer item"
	}
	return ""
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// BrandByName returns the brand whose name or alias equals name
func (r *Registry) BrandByName(name string) *Brand {
	n := strings.ToLower(strings.TrimSpace(name))
	for i := range r.Brands {
		if strings.ToLower(r.Brands[i].Name) == n {
			return &r.Brands[i]
		}
		for _, a := range r.Brands[i].Aliases {
			if strings.ToLower(a) == n {
				return &r.Brands[i]
			}
		}
	}
	return nil
}

// CategoryByName returns the category with the given name
func (r *Registry) CategoryByName(name string) *Category {
	for i := range r.Categories {
		if strings.EqualFold(r.Categories[i].Name, name) {
			return &r.Categories[i]
		}
	}
	return nil
}

// UnitByName returns the unit with the given canonical name
func (r *Registry) UnitByName(name string) *Unit {
	for i := range r.Units {
		if r.Units[i].Name == name {
			return &r.Units[i]
		}
	}
	return nil
}

// MaterialByName returns the material group with the given name
func (r *Registry) MaterialByName(name string) *Material {
	for i := range r.Materials {
		if strings.EqualFold(r.Materials[i].Name, name) {
			return &r.Materials[i]
		}
	}
	return nil
}

// SizeRank returns the rank of a size class word and whether it is known
func (r *Registry) SizeRank(word string) (int, bool) {
	for _, sw := range r.SizeWords {
		if strings.EqualFold(sw.Word, word) {
			return sw.Rank, true
		}
	}
	return 0, false
}

// RetailerForHost returns the retailer owning host (subdomains included)
func (r *Registry) RetailerForHost(host string) *Retailer {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for i := range r.Retailers {
		d := r.Retailers[i].Domain
		if host == d || strings.HasSuffix(host, "."+d) {
			return &r.Retailers[i]
		}
	}
	return nil
}

// RetailerForSource returns the retailer whose name or alias the source string names
func (r *Registry) RetailerForSource(source string) *Retailer {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		return nil
	}
	for i := range r.Retailers {
		rt := &r.Retailers[i]
		names := append([]string{rt.Name, rt.Domain}, rt.Aliases...)
		for _, n := range names {
			n = strings.ToLower(n)
			if s == n || strings.HasPrefix(s, n+" ") || strings.HasPrefix(s, n+" -") {
				return rt
			}
		}
	}
	return nil
}

// RetailerForURL parses raw and returns its retailer, if known
func (r *Registry) RetailerForURL(raw string) (*Retailer, *url.URL) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, nil
	}
	return r.RetailerForHost(u.Hostname()), u
}

// IsDirectProductURL reports whether raw is a product page of a known retailer
func (r *Registry) IsDirectProductURL(raw string) bool {
	rt, u := r.RetailerForURL(raw)
	if rt == nil {
		return false
	}
	return rt.IsProductURL(u)
}

// PathQuery returns the path with the raw query appended, the form retailer patterns match against
func PathQuery(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// IsProductURL reports whether u is a direct product page for this retailer.
// Listing/search shapes always lose, even if a product pattern also matches.
func (rt *Retailer) IsProductURL(u *url.URL) bool {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	pq := PathQuery(u)
	if rt.IsSearchPath(pq) {
		return false
	}
	for _, re := range rt.product {
		if re.MatchString(pq) {
			return true
		}
	}
	return false
}

// IsSearchPath reports whether pathQuery is a search/listing/catalog path
func (rt *Retailer) IsSearchPath(pathQuery string) bool {
	for _, re := range rt.search {
		if re.MatchString(pathQuery) {
			return true
		}
	}
	return false
}

// Rewrite applies the first matching rewrite rule to u and returns the new URL
func (rt *Retailer) Rewrite(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	pq := PathQuery(u)
	for _, rw := range rt.Rewrites {
		if rw.re == nil || !rw.re.MatchString(pq) {
			continue
		}
		loc := rw.re.FindStringSubmatchIndex(pq)
		path := string(rw.re.ExpandString(nil, rw.Replace, pq, loc))
		return fmt.Sprintf("https://www.%s%s", rt.Domain, path), true
	}
	return "", false
}
