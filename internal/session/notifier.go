package session

import "sync"

// AuthChange is delivered to subscribers whenever the authenticated state is
// asserted. The JSON form is what browser clients receive.
type AuthChange struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	UserInfo        *UserProfile `json:"userInfo"`
}

type subscriber struct {
	id int
	fn func(AuthChange)
}

// Notifier fans AuthChange events out to subscribers.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (n *Notifier) Subscribe(fn func(AuthChange)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscriber{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every current subscriber in subscription order on the
// caller's goroutine. Subscribers may subscribe or unsubscribe from within
// the callback; changes apply from the next Publish.
func (n *Notifier) Publish(isAuthenticated bool, profile *UserProfile) {
	n.mu.Lock()
	snapshot := make([]subscriber, len(n.subs))
	copy(snapshot, n.subs)
	n.mu.Unlock()

	change := AuthChange{IsAuthenticated: isAuthenticated, UserInfo: profile}
	for _, s := range snapshot {
		s.fn(change)
	}
}
