package failinject

// NewDummyInjector returns an injector whose failpoints never fire. Production servers use
// this so the checks compile to almost nothing.
func NewDummyInjector() Injector {
	return &dummyInjector{}
}

type dummyInjector struct {
}

func (d *dummyInjector) RegisterFailpoint(name string) (Failpoint, error) {
	return &dummyFailpoint{}, nil
}

func (d *dummyInjector) GetFailpoint(name string) Failpoint {
	return &dummyFailpoint{}
}

func (d *dummyInjector) Start() error {
	return nil
}

func (d *dummyInjector) Stop() error {
	return nil
}

type dummyFailpoint struct {
}

func (df *dummyFailpoint) CheckFail() error {
	return nil
}

func (df *dummyFailpoint) SetFailAction(action FailAction) {
}

func (df *dummyFailpoint) Deactivate() {
}
