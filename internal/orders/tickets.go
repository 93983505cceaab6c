package orders

import (
	"fmt"

	"github.com/angelmondragon/maskball-tickets/pkg/db/models"
	"github.com/angelmondragon/maskball-tickets/pkg/enums"
)

const ticketIDPrefix = "TKT"

// BuildTickets issues one valid ticket per purchased unit. Ticket ids embed the whole normalized
// order number so they inherit its uniqueness across prefixes: MASK-ABC12345 yields
// TKT-MASK-ABC12345-01, -02 and so on.
func BuildTickets(order *models.Order) []models.IndividualTicket {
	number := NormalizeKey(order.OrderNumber)
	var (
		tickets []models.IndividualTicket
		seq     int
	)
	for _, li := range order.LineItems {
		for i := 0; i < li.Quantity; i++ {
			seq++
			ticketID := fmt.Sprintf("%s-%s-%02d", ticketIDPrefix, number, seq)
			tickets = append(tickets, models.IndividualTicket{
				OrderID:        order.ID,
				TicketID:       ticketID,
				TicketIDKey:    NormalizeKey(ticketID),
				TicketTypeID:   li.TicketTypeID,
				TicketTypeName: li.TicketTypeName,
				QRPayload:      QRPayload(order.OrderNumber, ticketID),
				Status:         enums.TicketStatusValid,
			})
		}
	}
	return tickets
}
