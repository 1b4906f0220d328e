// Package fdtcfg extracts EDMA controller configurations from a
// flattened devicetree blob. It is the static-configuration
// collaborator of pkg/edma: it produces resource ranges and register
// attributes, and knows nothing about the controller itself.
package fdtcfg

import (
	"fmt"
	"os"

	"github.com/platinasystems/fdt"

	"github.com/emergingrobotics/go-edma/pkg/edma"
)

// Compatible is the devicetree compatible string of supported
// controllers.
const Compatible = "ti,edma"

// DeviceNode is one controller instance found in the tree.
type DeviceNode struct {
	Name     string
	BaseAddr uint64
	RegSize  uint64
	CompIrq  uint32
	Config   edma.Config
}

// Load parses the blob at path and returns every compatible
// controller node.
func Load(path string) ([]DeviceNode, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading devicetree: %w", err)
	}
	return Parse(b)
}

// Parse walks a devicetree blob and decodes every node whose
// compatible property contains Compatible.
func Parse(blob []byte) ([]DeviceNode, error) {
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	if err := t.Parse(blob); err != nil {
		return nil, fmt.Errorf("parsing devicetree: %w", err)
	}

	var nodes []DeviceNode
	var firstErr error
	t.EachProperty("compatible", Compatible, func(n *fdt.Node, name, value string) {
		node, err := decodeNode(t, n)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("node %s: %w", n.Name, err)
			return
		}
		if err == nil {
			nodes = append(nodes, node)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return nodes, nil
}

func decodeNode(t *fdt.Tree, n *fdt.Node) (DeviceNode, error) {
	reg, err := propCells(t, n, "reg", 2)
	if err != nil {
		return DeviceNode{}, err
	}

	channels, err := propU32(t, n, "dma-channels")
	if err != nil {
		return DeviceNode{}, err
	}
	params, err := propU32(t, n, "edma-params")
	if err != nil {
		return DeviceNode{}, err
	}
	regions, err := propU32(t, n, "edma-regions")
	if err != nil {
		return DeviceNode{}, err
	}
	queues, err := propU32(t, n, "edma-queues")
	if err != nil {
		return DeviceNode{}, err
	}
	regionID, err := propU32(t, n, "region-id")
	if err != nil {
		return DeviceNode{}, err
	}
	queueNum, err := propU32(t, n, "queue-number")
	if err != nil {
		return DeviceNode{}, err
	}

	if regionID >= regions {
		return DeviceNode{}, fmt.Errorf("region-id %d out of %d regions", regionID, regions)
	}
	if queueNum >= queues {
		return DeviceNode{}, fmt.Errorf("queue-number %d out of %d queues", queueNum, queues)
	}

	resources, err := decodeResources(t, n)
	if err != nil {
		return DeviceNode{}, err
	}

	node := DeviceNode{
		Name:     n.Name,
		BaseAddr: uint64(reg[0]),
		RegSize:  uint64(reg[1]),
		Config: edma.Config{
			Name:      n.Name,
			BaseAddr:  uint64(reg[0]),
			Channels:  channels,
			MaxParams: params,
			RegionID:  regionID,
			QueueNum:  queueNum,
			Resources: resources,
		},
	}

	// The completion interrupt is optional in the tree; boards that
	// poll leave it out
	if raw, ok := n.Properties["interrupts"]; ok {
		node.CompIrq = decodeInterrupt(t.PropUint32Slice(raw))
	}
	return node, nil
}

// decodeInterrupt extracts the interrupt number from an interrupts
// specifier. A three-cell specifier is the GIC binding (type, number,
// flags); one or two cells carry the number first.
func decodeInterrupt(cells []uint32) uint32 {
	switch len(cells) {
	case 3:
		return cells[1]
	case 1, 2:
		return cells[0]
	default:
		return 0
	}
}

// decodeResources decodes the edma-resources property: cells in groups
// of three (resource kind, start index, end index).
func decodeResources(t *fdt.Tree, n *fdt.Node) ([]edma.ResourceRange, error) {
	raw, ok := n.Properties["edma-resources"]
	if !ok {
		return nil, fmt.Errorf("missing edma-resources property")
	}
	cells := t.PropUint32Slice(raw)
	if len(cells) == 0 || len(cells)%3 != 0 {
		return nil, fmt.Errorf("edma-resources needs groups of 3 cells, got %d", len(cells))
	}

	out := make([]edma.ResourceRange, 0, len(cells)/3)
	for i := 0; i < len(cells); i += 3 {
		kind := edma.ResourceKind(cells[i])
		if kind != edma.ResourceDMAChannel && kind != edma.ResourceParam {
			return nil, fmt.Errorf("edma-resources: unknown resource kind %d", cells[i])
		}
		if cells[i+1] > 0xFFFF || cells[i+2] > 0xFFFF {
			return nil, fmt.Errorf("edma-resources: index out of 16-bit range")
		}
		out = append(out, edma.ResourceRange{
			Kind:  kind,
			Start: uint16(cells[i+1]),
			End:   uint16(cells[i+2]),
		})
	}
	return out, nil
}

func propU32(t *fdt.Tree, n *fdt.Node, name string) (uint32, error) {
	raw, ok := n.Properties[name]
	if !ok {
		return 0, fmt.Errorf("missing %s property", name)
	}
	if len(raw) < 4 {
		return 0, fmt.Errorf("property %s too short (%d bytes)", name, len(raw))
	}
	return t.PropUint32(raw), nil
}

func propCells(t *fdt.Tree, n *fdt.Node, name string, want int) ([]uint32, error) {
	raw, ok := n.Properties[name]
	if !ok {
		return nil, fmt.Errorf("missing %s property", name)
	}
	cells := t.PropUint32Slice(raw)
	if len(cells) < want {
		return nil, fmt.Errorf("property %s has %d cells, need %d", name, len(cells), want)
	}
	return cells, nil
}
