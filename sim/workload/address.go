package workload

import (
	"fmt"
	"math/rand"

	"github.com/slicesim/slicesim/sim"
)

// sourceAddr returns a synthetic IPv4 source address in the slice's range:
// high-throughput 172.16.0.0/12, low-latency 192.168.0.0/16 and
// massive-device 10.0.0.0/8. Massive-device addresses are derived from the
// device index so a device always reports the same address.
func sourceAddr(slice sim.SliceType, deviceIdx int, rng *rand.Rand) string {
	switch slice {
	case sim.SliceHighThroughput:
		return fmt.Sprintf("172.%d.%d.%d", 16+rng.Intn(16), rng.Intn(256), 1+rng.Intn(254))
	case sim.SliceLowLatency:
		return fmt.Sprintf("192.168.%d.%d", rng.Intn(256), 1+rng.Intn(254))
	case sim.SliceMassiveDevice:
		if deviceIdx >= 0 {
			return fmt.Sprintf("10.%d.%d.%d", (deviceIdx>>16)&0xff, (deviceIdx>>8)&0xff, deviceIdx&0xff)
		}
		return fmt.Sprintf("10.%d.%d.%d", rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
	default:
		panic(fmt.Sprintf("sourceAddr: unknown slice %q", slice))
	}
}

// destAddr returns a synthetic destination in 8.0.0.0/8.
func destAddr(rng *rand.Rand) string {
	return fmt.Sprintf("8.%d.%d.%d", rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
}

// deviceID formats the id of the idx-th device in the population.
func deviceID(idx int) string {
	return fmt.Sprintf("device_%05d", idx)
}

// deviceClass assigns classes round-robin over the population.
func deviceClass(idx int) sim.DeviceClass {
	return sim.DeviceClasses[idx%len(sim.DeviceClasses)]
}
