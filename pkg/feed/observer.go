package feed

// Observer is told about every event a dispatcher worker applied, with the error the
// book returned for it. Calls come from worker goroutines concurrently.
type Observer interface {
	OnApplied(ev Event, err error)
}

type ObserverFunc func(ev Event, err error)

func (f ObserverFunc) OnApplied(ev Event, err error) {
	f(ev, err)
}
