package session

// Change describes a write to shared session storage. NewValue is nil when
// the key was removed.
type Change struct {
	Key      string
	NewValue *string
}

// ChangeFeed delivers writes made by other holders of the same storage, such
// as another browser tab or CLI process. Writes made through the watching
// handle itself are not reported.
type ChangeFeed interface {
	Watch(fn func(Change)) (stop func(), err error)
}

// NopFeed never reports changes
type NopFeed struct{}

func (NopFeed) Watch(func(Change)) (func(), error) {
	return func() {}, nil
}
