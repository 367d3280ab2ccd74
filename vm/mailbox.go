package vm

// outboxEntry is one message in flight from a session to the runtime
// router, paired with the one-shot completion signal the sender blocks
// on before it may send or receive again.
type outboxEntry struct {
	msg  Message
	done chan struct{}
}

// Mailbox is an actor's inbound queue plus a handle to the shared router
// outbox every actor in the same run publishes onto.
type Mailbox struct {
	inbox  chan Message
	outbox chan<- outboxEntry
}

// inboxDepth bounds how many undelivered messages may queue for one
// actor before the router blocks delivering more.
const inboxDepth = 64

// NewMailbox allocates a Mailbox wired to the given shared outbox and
// returns it along with the send-only handle the router uses to deliver
// messages into its inbox.
func NewMailbox(outbox chan<- outboxEntry) (*Mailbox, chan<- Message) {
	inbox := make(chan Message, inboxDepth)
	return &Mailbox{inbox: inbox, outbox: outbox}, inbox
}
