package notifications

import (
	"net/url"
	"strings"

	"github.com/angelmondragon/maskball-tickets/internal/orders"
)

const defaultQRSize = "300x300"

// QRGenerator builds image links for ticket QR codes. Rendering is delegated to the
// configured QR service; the link is a pure function of its inputs.
type QRGenerator struct {
	baseURL string
	size    string
}

// NewQRGenerator returns a generator rooted at baseURL.
func NewQRGenerator(baseURL string) QRGenerator {
	return QRGenerator{baseURL: strings.TrimSpace(baseURL), size: defaultQRSize}
}

// Generate returns the image URL encoding "orderNumber|ticketId". An empty base URL yields
// the raw payload so callers can still print it.
func (g QRGenerator) Generate(orderNumber, ticketID, ticketType, customerName string) string {
	payload := orders.QRPayload(orderNumber, ticketID)
	if g.baseURL == "" {
		return payload
	}
	q := url.Values{}
	q.Set("size", g.size)
	q.Set("data", payload)
	if label := strings.TrimSpace(ticketType + " " + customerName); label != "" {
		q.Set("title", label)
	}
	sep := "?"
	if strings.Contains(g.baseURL, "?") {
		sep = "&"
	}
	return g.baseURL + sep + q.Encode()
}
