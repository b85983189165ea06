package orderbook

import "github.com/atmx/contracts-engine/internal/model"

// orderNode is a resting order together with its position in a price
// level's time-priority queue. It owns its own prev/next links rather
// than living in any generic container, the same shape as the prototype's
// OrderNode: a uniquely-owned node with raw pointers, not a cyclic
// container-managed list.
type orderNode struct {
	order model.Order
	prev  *orderNode
	next  *orderNode
}

// priceLevel is a FIFO queue of resting orders at one price. append is
// O(1); remove is O(1) given the node (no scan required), matching the
// prototype's OrderList.
type priceLevel struct {
	head        *orderNode
	tail        *orderNode
	count       int
	totalVolume int64
}

func (l *priceLevel) append(n *orderNode) {
	l.count++
	l.totalVolume += n.order.Quantity
	if l.tail == nil {
		l.head = n
		l.tail = n
		n.prev = nil
		n.next = nil
		return
	}
	l.tail.next = n
	n.prev = l.tail
	n.next = nil
	l.tail = n
}

func (l *priceLevel) remove(n *orderNode) {
	l.totalVolume -= n.order.Quantity
	l.count--

	if n.prev == nil {
		l.head = n.next
	} else {
		n.prev.next = n.next
	}

	if n.next == nil {
		l.tail = n.prev
	} else {
		n.next.prev = n.prev
	}

	n.prev = nil
	n.next = nil
}
