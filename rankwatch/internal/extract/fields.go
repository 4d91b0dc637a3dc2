package extract

import (
	"strconv"
	"strings"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// Ordered lookup tables. The first present, non-blank value wins.
var (
	jsonBrandKeys   = []string{"brandName", "brand", "brandNm"}
	jsonProductKeys = []string{"productName", "goodsName", "goodsNm", "name"}
	jsonPriceKeys   = []string{"price", "salePrc", "salePrice", "prc"}
	jsonRankKeys    = []string{"rank", "ranking", "rankNo"}
	jsonURLKeys     = []string{"productUrl", "url", "goodsUrl"}
	jsonImageKeys   = []string{"imageUrl", "imgUrl", "thumbnail"}

	htmlBrandSelectors   = []string{".tx_brand", ".brand", "[data-brand-name]", "[data-brand]"}
	htmlProductSelectors = []string{".tx_name", ".name", "[data-prd-name]", "[data-goods-name]"}
	htmlPriceSelectors   = []string{".tx_cur", ".price", ".prc", "[data-price]"}
	htmlRankSelectors    = []string{".tx_rank", ".rank", ".num", "[data-rank]"}
)

const (
	containerSelector         = "li:has(.tx_name), li:has(.tx_brand), div:has(.tx_name)"
	fallbackContainerSelector = "[data-prd-name], [data-goods-name], [data-brand-name]"
	productNameSelector       = ".tx_name"
	linkSelector              = "a[href]"
	imageSelector             = "img[src], img[data-src]"
)

// record holds the raw attribute strings read from one JSON object or
// HTML container. Empty means absent.
type record struct {
	brand, product, price, rank string
	productURL, imageURL       string
}

// candidate validates r. position is the 1-based index r would take among
// accepted records and becomes the rank when none was found.
func (r record) candidate(position int) (ranking.Candidate, bool) {
	if r.brand == "" || r.product == "" {
		return ranking.Candidate{}, false
	}
	price, ok := parseDigits(r.price, 64)
	if !ok {
		return ranking.Candidate{}, false
	}
	rank := position
	if n, ok := parseDigits(r.rank, 32); ok {
		rank = int(n)
	}
	return ranking.Candidate{
		Rank:       rank,
		Brand:      r.brand,
		Product:    r.product,
		Price:      price,
		ProductURL: r.productURL,
		ImageURL:   r.imageURL,
	}, true
}

// parseDigits keeps only ASCII digits of s ("12,900원" → 12900). No digits
// or a value overflowing bitSize is reported as absent.
func parseDigits(s string, bitSize int) (int64, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, bitSize)
	if err != nil {
		return 0, false
	}
	return n, true
}
