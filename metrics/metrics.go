package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Inc()
	Dec()
}

type Factory interface {
	CreateCounter(name string, description string) (Counter, error)

	CreateGauge(name string, description string) (Gauge, error)

	Start() error

	Stop() error
}
