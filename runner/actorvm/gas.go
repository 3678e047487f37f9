package actorvm

// GasCharge is one unit of accounting. The VM only meters compute and
// storage; there is no virtual gas.
type GasCharge struct {
	Name       string
	ComputeGas int64
	StorageGas int64
}

func (g GasCharge) Total() int64 {
	return g.ComputeGas + g.StorageGas
}

func newGasCharge(name string, computeGas int64, storageGas int64) GasCharge {
	return GasCharge{
		Name:       name,
		ComputeGas: computeGas,
		StorageGas: storageGas,
	}
}

// Pricelist prices the operations the VM and actors perform.
type Pricelist interface {
	// OnMethodInvocation is charged before every call, argBytes being the
	// encoded size of the arguments.
	OnMethodInvocation(argBytes int) GasCharge
	// OnStorage is charged by actors for state they read or write.
	OnStorage(bytes int) GasCharge
	// OnCompute is charged by actors for units of work.
	OnCompute(units int64) GasCharge
}

type pricelistV0 struct {
	callBase       int64
	callPerArgByte int64

	storagePerByte  int64
	computePerUnit  int64
	computeBaseCost int64
}

var _ Pricelist = (*pricelistV0)(nil)

// DefaultPricelist is the pricelist used unless a runner is configured with
// another one.
var DefaultPricelist Pricelist = &pricelistV0{
	callBase:       1000,
	callPerArgByte: 10,

	storagePerByte:  100,
	computePerUnit:  5,
	computeBaseCost: 50,
}

func (pl *pricelistV0) OnMethodInvocation(argBytes int) GasCharge {
	return newGasCharge("OnMethodInvocation", pl.callBase+pl.callPerArgByte*int64(argBytes), 0)
}

func (pl *pricelistV0) OnStorage(bytes int) GasCharge {
	return newGasCharge("OnStorage", 0, pl.storagePerByte*int64(bytes))
}

func (pl *pricelistV0) OnCompute(units int64) GasCharge {
	return newGasCharge("OnCompute", pl.computeBaseCost+pl.computePerUnit*units, 0)
}
