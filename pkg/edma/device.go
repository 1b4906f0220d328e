package edma

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/emergingrobotics/go-edma/pkg/regmap"
)

// MaxChannels is the width of the hardware completion vector; channel
// and completion-code indices live in [0, MaxChannels).
const MaxChannels = 64

// InterruptLine is the completion interrupt source of a device.
// regmap.InterruptLine satisfies it on Linux.
type InterruptLine interface {
	Wait() (uint32, error)
	Enable() error
	Disable() error
}

// Config is the static configuration of one controller instance,
// normally supplied by the devicetree collaborator.
type Config struct {
	Name      string
	BaseAddr  uint64
	Channels  uint32
	MaxParams uint32
	RegionID  uint32
	QueueNum  uint32

	// Resources are the (kind, start, end) claims applied at
	// initialization.
	Resources []ResourceRange

	// Interrupt aggregator plumbing. Zero values select the layout
	// derived from RegionID.
	AggStatusOff  uint32
	AggMaskOff    uint32
	AggEnableMask uint32
	AggClearMask  uint32
}

// Device is one EDMA controller instance: its register window, the
// three resource pools scoped to it, and the per-channel slots.
type Device struct {
	name      string
	regs      regmap.RegisterFile
	irq       InterruptLine
	region    uint32
	queue     uint32
	channels  uint32
	maxParams uint32

	aggStatusOff uint32
	aggClearMask uint32

	// mu guards the resource pools and slot directions. Held only
	// in task context; the completion dispatcher never takes it.
	mu        sync.Mutex
	chPool    resourcePool
	tccPool   resourcePool
	paramPool resourcePool

	// allocated is the per-channel exclusive-ownership flag, shared
	// with interrupt context.
	allocated *AtomicBitmap

	slots []channelSlot
}

// Open initializes a controller instance over the given register
// window. irq may be nil when the caller services completions by other
// means. Static resource ranges are claimed here, before any
// interrupt can be delivered, with plain bitmap operations.
func Open(cfg Config, regs regmap.RegisterFile, irq InterruptLine) (*Device, error) {
	if regs == nil {
		return nil, NewError(StatusInvalidArgument, "opening device without registers")
	}
	if cfg.Channels == 0 || cfg.Channels > MaxChannels {
		return nil, NewError(StatusInvalidArgument,
			fmt.Sprintf("opening %s: channel count %d out of range", cfg.Name, cfg.Channels))
	}
	if cfg.MaxParams == 0 {
		return nil, NewError(StatusInvalidArgument,
			fmt.Sprintf("opening %s: no PARAM slots", cfg.Name))
	}

	d := &Device{
		name:      cfg.Name,
		regs:      regs,
		irq:       irq,
		region:    cfg.RegionID,
		queue:     cfg.QueueNum,
		channels:  cfg.Channels,
		maxParams: cfg.MaxParams,
		chPool:    newResourcePool(ResourceDMAChannel, cfg.Channels),
		tccPool:   newResourcePool(ResourceDMAChannel, cfg.Channels),
		paramPool: newResourcePool(ResourceParam, cfg.MaxParams),
		allocated: NewAtomicBitmap(cfg.Channels),
		slots:     make([]channelSlot, cfg.Channels),
	}

	d.aggStatusOff = cfg.AggStatusOff
	if d.aggStatusOff == 0 {
		d.aggStatusOff = regmap.RegIntAggStatus
	}
	aggMaskOff := cfg.AggMaskOff
	if aggMaskOff == 0 {
		aggMaskOff = regmap.RegIntAggMask
	}
	d.aggClearMask = cfg.AggClearMask
	if d.aggClearMask == 0 {
		d.aggClearMask = 2 << d.region
	}
	enableMask := cfg.AggEnableMask
	if enableMask == 0 {
		enableMask = 0x1FF &^ (2 << d.region)
	}

	for _, res := range cfg.Resources {
		if err := d.claimResources(res.Kind, uint32(res.Start), uint32(res.End)); err != nil {
			return nil, fmt.Errorf("initializing %s: %w", d.name, err)
		}
	}

	// Owned PARAM slots start out as empty, unlinked descriptors
	empty := ParamEntry{Link: LinkNone}
	for idx := uint32(0); idx < d.maxParams; idx++ {
		if d.paramPool.owned.Test(idx) {
			writeParam(d.regs, idx, &empty)
		}
	}

	for ch := range d.slots {
		d.slots[ch].dir = DirIdle
	}

	regs.Write32(aggMaskOff, enableMask)

	return d, nil
}

// Name returns the configured instance name.
func (d *Device) Name() string {
	return d.name
}

// Channels returns the channel count of the instance.
func (d *Device) Channels() uint32 {
	return d.channels
}

// claimResources validates one static-configuration triple and claims
// it. A channel-pool claim co-claims the same range of completion
// codes, reflecting the completion-code = channel-number convention.
// Nothing is claimed on invalid input.
func (d *Device) claimResources(kind ResourceKind, start, end uint32) error {
	switch kind {
	case ResourceDMAChannel:
		if start > end || end >= d.channels {
			log.Printf("[edma] %s: invalid DMA channel resource with start %d and end %d",
				d.name, start, end)
			return NewError(StatusInvalidResourceRange,
				fmt.Sprintf("claiming channels [%d, %d]", start, end))
		}
		if err := d.chPool.owned.AllocRange(start, end); err != nil {
			return err
		}
		return d.tccPool.owned.AllocRange(start, end)

	case ResourceParam:
		if start > end || end >= d.maxParams {
			log.Printf("[edma] %s: invalid PARAM resource with start %d and end %d",
				d.name, start, end)
			return NewError(StatusInvalidResourceRange,
				fmt.Sprintf("claiming PARAM slots [%d, %d]", start, end))
		}
		return d.paramPool.owned.AllocRange(start, end)

	default:
		log.Printf("[edma] %s: invalid resource kind %d in static configuration", d.name, kind)
		return NewError(StatusInvalidResourceRange,
			fmt.Sprintf("claiming resources of kind %d", kind))
	}
}

// configureChannelRegion maps channel ch to PARAM entry param, assigns
// its event queue and grants the shadow region access to the channel.
func (d *Device) configureChannelRegion(ch, param uint32) {
	d.regs.Write32(regmap.DchmapOffset(ch),
		(param<<regmap.DchmapParamShift)&regmap.DchmapParamMask)

	qoff, qmask, qshift := regmap.DmaqnumOffset(ch)
	regmap.UpdateField(d.regs, qoff, qmask, qshift, d.queue)

	draeOff := regmap.DraeOffset(d.region, ch)
	d.regs.Write32(draeOff, d.regs.Read32(draeOff)|1<<(ch%32))
}

// releaseChannelRegion undoes configureChannelRegion: triggers and the
// completion interrupt source are disabled, pending state cleared, the
// region access bit dropped and the PARAM mapping reset.
func (d *Device) releaseChannelRegion(ch uint32) {
	disableEvent(d.regs, d.region, ch)
	disableCompletionIntr(d.regs, d.region, ch)
	clearEvent(d.regs, d.region, ch)
	clearInterrupt(d.regs, d.region, ch)

	draeOff := regmap.DraeOffset(d.region, ch)
	d.regs.Write32(draeOff, d.regs.Read32(draeOff)&^(1<<(ch%32)))

	d.regs.Write32(regmap.DchmapOffset(ch), 0)
}

// mappedParam returns the PARAM entry currently mapped to channel ch.
func (d *Device) mappedParam(ch uint32) (uint32, error) {
	param := (d.regs.Read32(regmap.DchmapOffset(ch)) & regmap.DchmapParamMask) >>
		regmap.DchmapParamShift
	if param >= d.maxParams {
		return 0, NewError(StatusCancelled,
			fmt.Sprintf("no PARAM set linked to channel %d", ch))
	}
	return param, nil
}

// pendingLength re-reads channel ch's live descriptor and recomputes
// the byte count it still describes.
func (d *Device) pendingLength(ch uint32) uint32 {
	param, err := d.mappedParam(ch)
	if err != nil {
		log.Printf("[edma] %s: unable to get PARAM set linked to channel %d", d.name, ch)
		return 0
	}
	entry := readParam(d.regs, param)
	return entry.PendingLength()
}

func (d *Device) validateChannel(ch uint32) error {
	if ch >= d.channels {
		return NewError(StatusInvalidChannel,
			fmt.Sprintf("%s: channel has to be a number from 0 to %d", d.name, d.channels-1))
	}
	return nil
}

// Configure acquires a channel + completion-code + PARAM-slot triple,
// synthesizes the descriptor and programs it. A channel that is
// already configured is deconfigured first, so repeated calls are
// idempotent from the caller's perspective. Partial acquisition is
// unwound before returning an error.
func (d *Device) Configure(ch uint32, req *TransferRequest) error {
	if err := d.validateChannel(ch); err != nil {
		return err
	}
	if req == nil {
		return NewError(StatusInvalidArgument, "nil transfer request")
	}

	if d.allocated.Test(ch) {
		log.Printf("[edma] %s: deconfiguring and re-configuring channel %d", d.name, ch)
		if err := d.Deconfigure(ch); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.chPool.alloc(ch); err != nil {
		return NewErrorWithCause(StatusAllocationFailed,
			fmt.Sprintf("%s: channel %d allocation", d.name, ch), err)
	}
	tcc, err := d.tccPool.alloc(ch)
	if err != nil {
		d.chPool.free(ch)
		return NewErrorWithCause(StatusAllocationFailed,
			fmt.Sprintf("%s: completion code %d allocation", d.name, ch), err)
	}
	param, err := d.paramPool.alloc(ResourceAllocAny)
	if err != nil {
		d.tccPool.free(tcc)
		d.chPool.free(ch)
		return NewErrorWithCause(StatusAllocationFailed,
			fmt.Sprintf("%s: PARAM allocation for channel %d", d.name, ch), err)
	}

	d.configureChannelRegion(ch, param)

	if req.BlockCount > 1 {
		log.Printf("[edma] %s: only the head block of a multi-block request is programmed", d.name)
	}

	entry, err := synthesizeParam(req, tcc)
	if err != nil {
		d.releaseChannelRegion(ch)
		d.paramPool.free(param)
		d.tccPool.free(tcc)
		d.chPool.free(ch)
		return err
	}
	writeParam(d.regs, param, &entry)

	// The channel's completion source is masked while the handler
	// registration is swapped, so an in-flight completion never
	// observes a half-updated slot.
	disableCompletionIntr(d.regs, d.region, ch)
	if req.Callback != nil {
		d.slots[ch].handler.Store(&completionHandler{
			cb:      req.Callback,
			arg:     req.CallbackArg,
			channel: ch,
		})
		enableCompletionIntr(d.regs, d.region, ch)
	} else {
		d.slots[ch].handler.Store(nil)
	}

	d.slots[ch].dir = req.Direction
	d.allocated.TestAndSet(ch)
	return nil
}

// Start arms the channel's triggers according to its direction.
func (d *Device) Start(ch uint32) error {
	if err := d.validateChannel(ch); err != nil {
		return err
	}
	if !d.allocated.Test(ch) {
		return NewError(StatusNotAllocated,
			fmt.Sprintf("%s: starting channel %d", d.name, ch))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[ch].dir.armTriggers(d.regs, d.region, ch)
}

// Stop disables the channel's trigger mode and clears pending event
// and interrupt state. The channel stays allocated.
func (d *Device) Stop(ch uint32) error {
	if err := d.validateChannel(ch); err != nil {
		return err
	}
	if !d.allocated.Test(ch) {
		return NewError(StatusNotAllocated,
			fmt.Sprintf("%s: stopping channel %d", d.name, ch))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked(ch)
}

func (d *Device) stopLocked(ch uint32) error {
	if err := d.slots[ch].dir.disarmTriggers(d.regs, d.region, ch); err != nil {
		return err
	}
	log.Printf("[edma] %s: stopped DMA transfer on channel %d", d.name, ch)
	return nil
}

// Status reads the channel's live completion and event state.
func (d *Device) Status(ch uint32) (ChannelStatus, error) {
	if err := d.validateChannel(ch); err != nil {
		return ChannelStatus{}, err
	}
	if !d.allocated.Test(ch) {
		return ChannelStatus{}, NewError(StatusNotAllocated,
			fmt.Sprintf("%s: status of channel %d", d.name, ch))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	transferComplete := interruptPending(d.regs, d.region, ch)
	hasPendingEvent := eventPending(d.regs, d.region, ch)

	dir := d.slots[ch].dir
	busy, err := dir.busy(transferComplete, hasPendingEvent)
	if err != nil {
		return ChannelStatus{}, err
	}

	return ChannelStatus{
		Busy:          busy,
		Direction:     dir,
		PendingLength: d.pendingLength(ch),
	}, nil
}

// Deconfigure stops the channel and releases its channel,
// completion-code and PARAM-slot allocations. A release failure is
// reported as StatusCancelled and not retried.
func (d *Device) Deconfigure(ch uint32) error {
	if err := d.validateChannel(ch); err != nil {
		return err
	}
	if !d.allocated.Test(ch) {
		return NewError(StatusNotAllocated,
			fmt.Sprintf("%s: deconfiguring channel %d", d.name, ch))
	}

	log.Printf("[edma] %s: deconfiguring resources of channel %d", d.name, ch)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.stopLocked(ch); err != nil {
		log.Printf("[edma] %s: stop during deconfigure of channel %d: %v", d.name, ch, err)
	}

	param, err := d.mappedParam(ch)
	if err != nil {
		return err
	}

	// tcc = ch by convention
	d.releaseChannelRegion(ch)

	if err := d.chPool.free(ch); err != nil {
		return NewErrorWithCause(StatusCancelled,
			fmt.Sprintf("%s: channel %d deallocation", d.name, ch), err)
	}
	if err := d.tccPool.free(ch); err != nil {
		return NewErrorWithCause(StatusCancelled,
			fmt.Sprintf("%s: completion code %d deallocation", d.name, ch), err)
	}
	if err := d.paramPool.free(param); err != nil {
		return NewErrorWithCause(StatusCancelled,
			fmt.Sprintf("%s: PARAM %d deallocation", d.name, ch), err)
	}

	d.slots[ch].dir = DirIdle
	d.slots[ch].handler.Store(nil)
	d.allocated.Clear(ch)
	return nil
}

// Registry maps instance numbers to open devices. It replaces ambient
// process-wide state: whoever owns the registry passes it by reference
// to the code that needs to reach a device.
type Registry struct {
	mu      sync.RWMutex
	devices map[uint32]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[uint32]*Device)}
}

// Register adds a device under an instance number.
func (r *Registry) Register(inst uint32, d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[inst]; ok {
		return NewError(StatusInvalidArgument,
			fmt.Sprintf("instance %d already registered", inst))
	}
	r.devices[inst] = d
	return nil
}

// Lookup returns the device registered under an instance number.
func (r *Registry) Lookup(inst uint32) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[inst]
	return d, ok
}

// Instances returns the registered instance numbers in order.
func (r *Registry) Instances() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint32, 0, len(r.devices))
	for inst := range r.devices {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
