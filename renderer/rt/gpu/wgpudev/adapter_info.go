package wgpudev

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
)

func adapterInfo(adapter *wgpu.Adapter) gpu.Info {
	info := adapter.GetInfo()
	out := gpu.Info{
		Vendor:   info.VendorName,
		Renderer: info.Name,
		Driver:   info.DriverDescription,
		Backend:  fmt.Sprintf("%v", info.BackendType),
	}
	for _, f := range adapter.EnumerateFeatures() {
		out.Features = append(out.Features, fmt.Sprintf("%v", f))
	}
	return out
}
