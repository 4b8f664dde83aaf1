package realtime

// Notifier receives the informational signals of a Channel.
type Notifier interface {
	// Opened is called each time a connection is established.
	Opened()
	// Failed is called when a dial or read fails. The channel reconnects on its own.
	Failed(err error)
	// Message surfaces the text of an allocation_process event to the user.
	Message(text string)
}

type nopNotifier struct{}

func (nopNotifier) Opened()        {}
func (nopNotifier) Failed(error)   {}
func (nopNotifier) Message(string) {}
