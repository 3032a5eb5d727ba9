package parsers

import (
	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/logger"
)

var testPolicy = config.DefaultPolicy()

func testFactory() *ParserFactory {
	return NewParserFactory(testPolicy, logger.NewTestLogger())
}

const threeNames = "Alice 1500 1510\nBob 1600 1590\nCarol 1450 1460"

// stackedTable keeps every player in row 2 and every result stacked per
// opponent column
func stackedTable() [][]string {
	return [][]string{
		{"#\n1", "Name", "Rating\nPre", "Rating\nPost", "1", "", "2", "", "3", ""},
		{"", "", "", "", "1", "1", "2", "2", "3", "3"},
		{"1\n2\n3", threeNames, "", "", "XXXXXX", "", "3 1", "", "2 3\n3 0", ""},
	}
}

// compactTable packs number, name and ratings into column 0; row r holds
// player r-1's own results
func compactTable() [][]string {
	return [][]string{
		{"#2", "Name", "Pre", "Post", "1", "2", "3"},
		{"", "", "", "", "1", "2", "3"},
		{"1Alice 1500 1510\n2Bob 1600 1590\n3Carol 1450 1460", "", "", "", "", "3 1", "2 3"},
		{"", "", "", "", "1 3\n3 2", "", ""},
		{"", "", "", "", "", "0 3", ""},
	}
}

func rowPerPlayerTable() [][]string {
	return [][]string{
		{"Name", "", "", "", "", "", "", ""},
		{"", "", "", "", "1", "1", "2", "2"},
		{"1", "Alice 1500 1510", "", "", "", "", "3 1", ""},
		{"2", "Bob 1600 1590", "", "", "1 3", "", "", ""},
	}
}

func columnPerPlayerTable() [][]string {
	return [][]string{
		{"#4", "", "Name", "", "", ""},
		{"", "", "", "", "1", "2"},
		{"1\n2\n3", "", threeNames, "", "", ""},
	}
}

func namelessTable() [][]string {
	return [][]string{
		{"Name", "Pre", "Post", "", "", ""},
		{"", "", "", "", "1", "2"},
		{"Chen, Wei 2064 2102\nChao, Marco 1932 2027", "", "", "", "", ""},
	}
}

// row5Table has no opponent numbers in row 1; results sit in the even
// columns of row 5
func row5Table() [][]string {
	blank := func() []string { return make([]string, 10) }
	return [][]string{
		{"#3", "Name", "Pre", "Post", "", "", "", "", "", ""},
		{"", "", "", "", "0", "0", "0", "0", "0", "0"},
		{"1\n2\n3", threeNames, "", "", "", "", "", "", "", ""},
		blank(),
		blank(),
		{"", "", "", "", "", "", "3 1", "", "2 3\n3 0", ""},
	}
}

// unlabeledRowsTable keeps results in rows 3 and 4 without saying whose
// they are
func unlabeledRowsTable() [][]string {
	return [][]string{
		{"#5", "Name", "Pre", "Post", "", "", "", "", "", ""},
		{"", "", "", "", "1", "1", "2", "2", "3", "3"},
		{"1\n2\n3", threeNames, "", "", "", "", "", "", "", ""},
		{"", "", "", "", "1 3", "", "", "", "3 0", ""},
		{"", "", "", "", "3 2", "", "", "", "", ""},
	}
}

const ocrText = `BTTC Round Robin results for January 13, 2023
#1
Name Rating Pre Post
1 | Alice Smith 1500 1510 3/1 2/3
2 | Bob Jones 1600 1590 3/0
3 | Carol White 1450 1460
`

const bracketPage = `<html><body>
<h1>BTTC Round Robin results for 2025 Nov 7</h1>
<div class="bracket">
  <div class="col-1"><div class="row"><div class="row-header">#1</div></div></div>
  <div class="names"><div class="row-header">Name</div></div>
  <div class="col-1"><div class="row">1</div></div>
  <div class="names"><div class="row">A</div></div>
  <div class="rating-pre"><div class="row">1500</div></div>
  <div class="rating-post"><div class="row">1510</div></div>
  <div class="games"><div class="row">
    <div class="score empty"></div>
    <div class="score"><div class="num">3</div><div class="num">1</div></div>
    <div class="score"><div class="num">2</div><div class="num">3</div></div>
  </div></div>
  <div class="col-1"><div class="row">2</div></div>
  <div class="names"><div class="row">B</div></div>
  <div class="rating-pre"><div class="row">1600</div></div>
  <div class="rating-post"><div class="row">1590</div></div>
  <div class="games"><div class="row">
    <div class="score"><div class="num">1</div><div class="num">3</div></div>
    <div class="score empty"></div>
    <div class="score"><div class="num">3</div><div class="num">0</div></div>
  </div></div>
  <div class="col-1"><div class="row">3</div></div>
  <div class="names"><div class="row">C</div></div>
  <div class="rating-pre"><div class="row">1450</div></div>
  <div class="rating-post"><div class="row">1460</div></div>
  <div class="games"><div class="row">
    <div class="score"><div class="num">3</div><div class="num">2</div></div>
    <div class="score"><div class="num">0</div><div class="num">3</div></div>
    <div class="score empty"></div>
  </div></div>
</div>
</body></html>`
