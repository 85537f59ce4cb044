package bbref

import (
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDoc(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(b)
}

func TestExtractPlayerFields(t *testing.T) {
	doc, err := ParseHTML(loadDoc(t, "player.html"))
	require.NoError(t, err)

	raw := Extract(doc)

	assert.Equal(t, found("Kareem Abdul-Jabbar"), raw.Name)
	assert.Equal(t, found("Center"), raw.Position)
	assert.Equal(t, found("7-2, 225lb (218cm, 102kg)"), raw.HeightWeight)
	assert.Equal(t, found("April 16, 1947"), raw.Birthdate)
	assert.Equal(t, found("October 18, 1969"), raw.Debut)
	assert.Empty(t, raw.Defaulted())

	assert.Equal(t, found("7-2"), raw.Height())
	assert.Equal(t, found("225lb (218cm, 102kg)"), raw.Weight())
}

func TestExtractMissingInfoBlockUsesSentinels(t *testing.T) {
	doc, err := ParseHTML(`<html><body><h1>Someone</h1><div id="info"><p>only one</p></div></body></html>`)
	require.NoError(t, err)

	raw := Extract(doc)

	assert.Equal(t, found("Someone"), raw.Name)
	for _, f := range []Field{raw.Position, raw.HeightWeight, raw.Birthdate, raw.Debut} {
		assert.False(t, f.Found)
		assert.Equal(t, Sentinel, f.Value)
		assert.False(t, f.NullString().Valid)
	}
	assert.Equal(t, []FieldName{FieldPosition, FieldHeightWeight, FieldBirthdate, FieldDebut}, raw.Defaulted())
	assert.False(t, raw.Height().Found)
	assert.False(t, raw.Weight().Found)
}

func TestExtractReorderedParagraphs(t *testing.T) {
	page := `<html><body><h1><span>Jane Doe</span></h1><div id="info">
		<p>NBA Debut: November 2, 1984</p>
		<p>Born: February 17, 1963 in Brooklyn, New York</p>
		<p>6-6, 198lb (90kg)</p>
		<p>Position: Shooting Guard and Small Forward &#9642; Shoots: Right</p>
	</div></body></html>`
	doc, err := ParseHTML(page)
	require.NoError(t, err)

	raw := Extract(doc)

	assert.Equal(t, "Shooting Guard and Small Forward", raw.Position.Value)
	assert.Equal(t, "6-6, 198lb (90kg)", raw.HeightWeight.Value)
	assert.Equal(t, "February 17, 1963", raw.Birthdate.Value)
	assert.Equal(t, "November 2, 1984", raw.Debut.Value)
}

func TestExtractMissingEndTokenYieldsSentinel(t *testing.T) {
	page := `<html><body><div id="info">
		<p>a</p><p>b</p><p>c</p>
		<p>Position: Center</p>
	</div></body></html>`
	doc, err := ParseHTML(page)
	require.NoError(t, err)

	raw := Extract(doc)

	assert.False(t, raw.Position.Found)
	assert.False(t, raw.Name.Found)
	assert.Contains(t, raw.Defaulted(), FieldPlayerName)
}

func TestBetween(t *testing.T) {
	tests := []struct {
		name, text, start, end string
		want                   string
		ok                     bool
	}{
		{"both tokens", "Position: Guard Shoots: Left", "Position:", "Shoots:", "Guard", true},
		{"no end token needed", "NBA Debut: May 1, 2000", "NBA Debut:", "", "May 1, 2000", true},
		{"missing start", "Shoots: Left", "Position:", "Shoots:", "", false},
		{"missing end", "Position: Guard", "Position:", "Shoots:", "", false},
		{"empty value", "Position: Shoots: Left", "Position:", "Shoots:", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := between(tt.text, tt.start, tt.end)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLayoutValidation(t *testing.T) {
	_, err := NewLayout(Rule{Field: FieldDebut, Paragraph: -1, Start: "x"})
	assert.Error(t, err)

	_, err = NewLayout(Rule{Field: FieldDebut, Paragraph: 1})
	assert.Error(t, err)

	_, err = NewLayout(
		Rule{Field: FieldDebut, Paragraph: 1, Start: "a"},
		Rule{Field: FieldDebut, Paragraph: 2, Start: "b"},
	)
	assert.Error(t, err)

	l, err := NewLayout(Rule{Field: FieldDebut, Paragraph: 0, Start: "Debut:"})
	require.NoError(t, err)
	doc, err := ParseHTML(`<div id="info"><p>Debut: today</p></div>`)
	require.NoError(t, err)
	raw := NewExtractor(l).Extract(doc)
	assert.Equal(t, "today", raw.Debut.Value)
	assert.False(t, raw.Position.Found)
}

func TestExtractStatsFromCommentedTable(t *testing.T) {
	doc, err := ParseHTML(loadDoc(t, "player.html"))
	require.NoError(t, err)

	rows := ExtractStats(doc)

	require.Len(t, rows, 2)
	first := rows[0]
	assert.Equal(t, "1969-70", first.Season)
	assert.Equal(t, []string{"age", "team_name_abbr", "games", "pts", "awards"}, first.Columns)
	assert.Equal(t, StatValue{Raw: "82", Number: 82, Numeric: true}, first.Values["games"])
	assert.Equal(t, StatValue{Raw: "MIL"}, first.Values["team_name_abbr"])
	assert.Equal(t, StatValue{Raw: "ROY-1,AS"}, first.Values["awards"])

	second := rows[1]
	assert.Equal(t, "1970-71", second.Season)
	games, ok := second.Get("games")
	require.True(t, ok)
	assert.True(t, games.Numeric)
	assert.Equal(t, 0.0, games.Number)
	assert.Equal(t, "0", games.Text())
	awards, ok := second.Get("awards")
	require.True(t, ok)
	assert.False(t, awards.Numeric)
	assert.Equal(t, "", awards.Text())
}

func TestExtractStatsRowSkipsLabelColumn(t *testing.T) {
	page := `<div id="div_totals_stats"><table>
		<thead><tr><th data-stat="season">Season</th><th data-stat="games">G</th><th data-stat="awards">Awards</th></tr></thead>
		<tbody>
			<tr><td>2019-20</td><td>5</td><td></td></tr>
			<tr><td>2020-21</td><td></td><td></td></tr>
		</tbody></table></div>`
	doc, err := ParseHTML(page)
	require.NoError(t, err)

	rows := ExtractStats(doc)

	require.Len(t, rows, 2)
	assert.Equal(t, "2019-20", rows[0].Season)
	assert.Equal(t, map[string]StatValue{
		"games":  {Raw: "5", Number: 5, Numeric: true},
		"awards": {Raw: ""},
	}, rows[0].Values)
	assert.Equal(t, map[string]StatValue{
		"games":  {Numeric: true},
		"awards": {Raw: ""},
	}, rows[1].Values)
}

func TestParseStatValueKeepsNonFiniteAsText(t *testing.T) {
	for _, text := range []string{"NaN", "Inf", "-inf", "infinity"} {
		t.Run(text, func(t *testing.T) {
			v := ParseStatValue("pts", text)
			assert.False(t, v.Numeric)
			assert.Equal(t, text, v.Text())
		})
	}

	v := ParseStatValue("fg_pct", ".512")
	assert.True(t, v.Numeric)
	assert.Equal(t, 0.512, v.Number)
}

func TestExtractStatsAbsentStructures(t *testing.T) {
	tests := map[string]string{
		"no region": `<html><body><p>nothing</p></body></html>`,
		"no header": `<div id="div_totals_stats"><table><tbody><tr><td>x</td></tr></tbody></table></div>`,
		"no body":   `<div id="div_totals_stats"><table><thead><tr><th data-stat="a">A</th></tr></thead></table></div>`,
	}
	for name, page := range tests {
		t.Run(name, func(t *testing.T) {
			doc, err := ParseHTML(page)
			require.NoError(t, err)
			assert.Empty(t, ExtractStats(doc))
		})
	}
}

func TestParseIndex(t *testing.T) {
	doc, err := ParseHTML(loadDoc(t, "index.html"))
	require.NoError(t, err)
	base, err := url.Parse("https://www.basketball-reference.com/players/a/")
	require.NoError(t, err)

	entries, skipped := ParseIndex(doc, base)

	assert.Equal(t, 2, skipped)
	require.Len(t, entries, 3)
	assert.Equal(t, IndexEntry{
		ID:       "abdelal01",
		Name:     "Alaa Abdelnaby",
		URL:      "https://www.basketball-reference.com/players/a/abdelal01.html",
		YearFrom: 1991,
		YearTo:   1995,
	}, entries[0])
	assert.Equal(t, "achiupr01", entries[1].ID)
	assert.Equal(t, 1970, entries[2].YearFrom)
}

func TestPlayerID(t *testing.T) {
	assert.Equal(t, "abdulka01", PlayerID("https://www.basketball-reference.com/players/a/abdulka01.html"))
	assert.Equal(t, "abdulka01", PlayerID("/players/a/abdulka01.html"))
	assert.Equal(t, "abdulka01", PlayerID("https://www.basketball-reference.com/players/a/abdulka01/"))
	assert.Equal(t, "", PlayerID(""))
}

func TestExtractPage(t *testing.T) {
	page, err := NewExtractor(Layout{}).ExtractPage(loadDoc(t, "player.html"))
	require.NoError(t, err)
	assert.Equal(t, "Center", page.Fields.Position.Value)
	assert.Len(t, page.Stats, 2)
}
