package bus

import "context"

// Observer sees every successful publication.
type Observer interface {
	Observe(topic string, payload []byte)
}

type ObserverFunc func(topic string, payload []byte)

func (f ObserverFunc) Observe(topic string, payload []byte) { f(topic, payload) }

type teePublisher struct {
	next      Publisher
	observers []Observer
}

// Tee returns a Publisher that forwards to p and reports each publication
// that p accepted to the observers.
func Tee(p Publisher, observers ...Observer) Publisher {
	return &teePublisher{next: p, observers: observers}
}

func (t *teePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := t.next.Publish(ctx, topic, payload); err != nil {
		return err
	}
	for _, o := range t.observers {
		o.Observe(topic, payload)
	}
	return nil
}
