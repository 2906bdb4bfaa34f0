package sim_test

// Blank import triggers sim/forest's init(), which registers NewLeafModelFunc.
// This allows package sim's internal test files to create rf/dt weighters
// without directly importing sim/forest (which would create an import cycle).
import _ "github.com/inventory-sim/inventory-sim/sim/forest"
