package pos

const (
	TopicOrderCreated   = "pos.order.created"
	TopicOrderPaid      = "pos.order.paid"
	TopicOrderCancelled = "pos.order.cancelled"
	TopicKitchenStatus  = "pos.order.kitchen"
)

// Partition key = order id, so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
