// Package mask renders the cursor-following reveal mask on the GPU.
//
// A Program owns every GPU object it creates: two shader modules, the
// uniform layout and bind group, the render pipeline, a static full-screen
// quad, a uniform buffer and an offscreen target sized to the canvas backing
// store. Each display frame rewrites the uniforms and draws the quad.
//
// Construction either succeeds completely or releases what it made and
// returns an error wrapping ErrUnavailable; callers run without a mask then.
package mask

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/frame"
)

// ErrUnavailable reports that the mask could not be created.
var ErrUnavailable = errors.New("mask: unavailable")

// ErrGPUTimeout reports that a submitted frame did not finish in time.
var ErrGPUTimeout = errors.New("mask: GPU wait timed out")

// quadVertices covers clip space with two triangles.
var quadVertices = [12]float32{
	-1, -1,
	1, -1,
	-1, 1,
	-1, 1,
	1, -1,
	1, 1,
}

const (
	quadVertexCount = 6
	quadStride      = 8
)

// Option configures a Program.
type Option func(*options)

type options struct {
	format      gputypes.TextureFormat
	vertex      string
	fragment    string
	waitTimeout time.Duration
	maxDim      uint32
	onFrame     func()
}

func defaultOptions() options {
	return options{
		format:      gputypes.TextureFormatBGRA8Unorm,
		vertex:      vertexShaderSource,
		fragment:    fragmentShaderSource,
		waitTimeout: 5 * time.Second,
		maxDim:      gputypes.DefaultLimits().MaxTextureDimension2D,
	}
}

// WithFormat sets the target texture format.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		if f != gputypes.TextureFormatUndefined {
			o.format = f
		}
	}
}

// WithShaders replaces the built-in WGSL sources.
func WithShaders(vertex, fragment string) Option {
	return func(o *options) {
		o.vertex = vertex
		o.fragment = fragment
	}
}

// WithLimits caps the render target at the device's MaxTextureDimension2D.
// The default is the WebGPU baseline.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		if l.MaxTextureDimension2D > 0 {
			o.maxDim = l.MaxTextureDimension2D
		}
	}
}

// WithFrameHook registers fn to run after every submitted frame.
func WithFrameHook(fn func()) Option {
	return func(o *options) {
		o.onFrame = fn
	}
}

// Program is the GPU mask. It is not safe for concurrent use; drive it from
// the frame loop goroutine.
type Program struct {
	device hal.Device
	queue  hal.Queue
	opts   options

	vsModule      hal.ShaderModule
	fsModule      hal.ShaderModule
	uniformLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout
	pipeline      hal.RenderPipeline
	quad          hal.Buffer
	uniforms      hal.Buffer
	bindGroup     hal.BindGroup

	target     hal.Texture
	targetView hal.TextureView
	width      uint32
	height     uint32

	cursor    Cursor
	color     planetmap.RGBA
	intensity float64

	sched   frame.Scheduler
	handle  frame.Handle
	running bool
	frames  uint64
	dead    bool
}

// New compiles and links the mask on device. On failure every object
// created so far is released and the error wraps ErrUnavailable.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Program, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: no GPU device", ErrUnavailable)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Program{
		device:    device,
		queue:     queue,
		opts:      o,
		color:     planetmap.Hex(FallbackColor),
		intensity: IntensityNormal,
	}

	compiled, err := Compile(o.vertex, o.fragment)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := p.link(compiled); err != nil {
		p.destroyResources()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	planetmap.Logger().Debug("mask: program ready", "format", o.format)
	return p, nil
}

// NewFromProvider creates a Program on a device shared by a host window.
// The provider must expose its HAL handles through HalDevice() and
// HalQueue(); its surface format becomes the target format.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Program, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrUnavailable)
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrUnavailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrUnavailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrUnavailable)
	}
	opts = append([]Option{WithFormat(provider.SurfaceFormat())}, opts...)
	return New(device, queue, opts...)
}

// link creates the shader modules, layouts, pipeline, quad and uniform
// buffer. The caller releases partial state on error.
func (p *Program) link(c Compiled) error {
	var err error
	p.vsModule, err = p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "mask_vs",
		Source: hal.ShaderSource{SPIRV: c.Vertex},
	})
	if err != nil {
		return fmt.Errorf("create vertex module: %w", err)
	}
	p.fsModule, err = p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "mask_fs",
		Source: hal.ShaderSource{SPIRV: c.Fragment},
	})
	if err != nil {
		return fmt.Errorf("create fragment module: %w", err)
	}

	p.uniformLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "mask_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform layout: %w", err)
	}

	p.pipeLayout, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "mask_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.uniformLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	p.pipeline, err = p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "mask_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.vsModule,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{
				{
					ArrayStride: quadStride,
					StepMode:    gputypes.VertexStepModeVertex,
					Attributes: []gputypes.VertexAttribute{
						{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					},
				},
			},
		},
		Fragment: &hal.FragmentState{
			Module:     p.fsModule,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    p.opts.format,
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}

	quadData := make([]byte, 0, len(quadVertices)*4)
	for _, v := range quadVertices {
		bits := math.Float32bits(v)
		quadData = append(quadData, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	p.quad, err = p.createAndUploadBuffer("mask_quad", quadData,
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}

	p.uniforms, err = p.createAndUploadBuffer("mask_uniforms", p.Params().bytes(),
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}

	p.bindGroup, err = p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "mask_bind",
		Layout: p.uniformLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: p.uniforms.NativeHandle(), Offset: 0, Size: uniformSize,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	return nil
}

func (p *Program) createAndUploadBuffer(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	p.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// Resize sets the backing store to the client box times the device pixel
// ratio, recreating the target texture, and pushes the new resolution
// uniform at once. Each side is clamped to the texture dimension limit.
func (p *Program) Resize(clientW, clientH, dpr float64) error {
	if p.dead {
		return nil
	}
	if dpr <= 0 {
		dpr = 1
	}
	w := p.side(clientW * dpr)
	h := p.side(clientH * dpr)
	if w == p.width && h == p.height && (p.target != nil || w == 0 || h == 0) {
		return nil
	}

	p.destroyTarget()
	p.width, p.height = w, h
	if w > 0 && h > 0 {
		if err := p.createTarget(); err != nil {
			return err
		}
	}

	res := make([]byte, 8)
	putF32(res, 0, float64(w))
	putF32(res, 4, float64(h))
	p.queue.WriteBuffer(p.uniforms, offResolution, res)
	return nil
}

func (p *Program) side(v float64) uint32 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return uint32(math.Min(math.Floor(v), float64(p.opts.maxDim)))
}

func (p *Program) createTarget() error {
	tex, err := p.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "mask_target",
		Size:          hal.Extent3D{Width: p.width, Height: p.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        p.opts.format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("create mask target: %w", err)
	}
	p.target = tex

	view, err := p.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "mask_target_view",
		Format:        p.opts.format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		p.destroyTarget()
		return fmt.Errorf("create mask target view: %w", err)
	}
	p.targetView = view
	return nil
}

// Size returns the backing store size in pixels.
func (p *Program) Size() (uint32, uint32) { return p.width, p.height }

// Target returns the view the mask is drawn into, or nil before the first
// non-empty Resize.
func (p *Program) Target() hal.TextureView { return p.targetView }

// SetCursor moves the reveal center.
func (p *Program) SetCursor(c Cursor) { p.cursor = c }

// Cursor returns the reveal center.
func (p *Program) Cursor() Cursor { return p.cursor }

// SetColor sets the tint. Alpha is ignored; frames always use Alpha.
func (p *Program) SetColor(c planetmap.RGBA) { p.color = c }

// SetIntensity scales the tint.
func (p *Program) SetIntensity(v float64) { p.intensity = v }

// Params derives the uniforms for the current canvas size. Radius and
// feather are recomputed on every call.
func (p *Program) Params() Params {
	return Derive(float64(p.width), float64(p.height), p.cursor, p.color, p.intensity)
}

// Frames returns the number of frames submitted.
func (p *Program) Frames() uint64 { return p.frames }

// Running reports whether a frame is scheduled.
func (p *Program) Running() bool { return p.running }

// Start begins rendering one frame per display frame of sched.
func (p *Program) Start(sched frame.Scheduler) {
	if p.dead || p.running {
		return
	}
	p.sched = sched
	p.running = true
	p.handle = sched.RequestFrame(p.renderFrame)
}

func (p *Program) renderFrame(time.Time) {
	p.handle = 0
	if !p.running {
		return
	}
	if err := p.Render(); err != nil {
		planetmap.Logger().Warn("mask: frame failed, mask disabled", "error", err)
		p.running = false
		return
	}
	p.handle = p.sched.RequestFrame(p.renderFrame)
}

// Stop cancels the scheduled frame. Calling Stop again does nothing.
func (p *Program) Stop() {
	if !p.running {
		return
	}
	p.running = false
	if p.handle != 0 {
		p.sched.CancelFrame(p.handle)
		p.handle = 0
	}
}

// Render draws one frame into the target and waits for the GPU. It does
// nothing while the canvas is empty.
func (p *Program) Render() error {
	if p.dead {
		return fmt.Errorf("%w: destroyed", ErrUnavailable)
	}
	if p.targetView == nil {
		return nil
	}
	p.queue.WriteBuffer(p.uniforms, 0, p.Params().bytes())

	encoder, err := p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "mask_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("mask"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "mask_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       p.targetView,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	rp.SetPipeline(p.pipeline)
	rp.SetBindGroup(0, p.bindGroup, nil)
	rp.SetVertexBuffer(0, p.quad, 0)
	rp.Draw(quadVertexCount, 1, 0, 0)
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer p.device.FreeCommandBuffer(cmdBuf)

	fence, err := p.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer p.device.DestroyFence(fence)

	if err := p.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := p.device.Wait(fence, 1, p.opts.waitTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return fmt.Errorf("%w after %v", ErrGPUTimeout, p.opts.waitTimeout)
	}

	p.frames++
	if p.opts.onFrame != nil {
		p.opts.onFrame()
	}
	return nil
}

// Destroy stops rendering and releases every GPU object. Destroy is
// idempotent.
func (p *Program) Destroy() {
	if p.dead {
		return
	}
	p.Stop()
	p.destroyTarget()
	p.destroyResources()
	p.dead = true
}

func (p *Program) destroyTarget() {
	if p.targetView != nil {
		p.device.DestroyTextureView(p.targetView)
		p.targetView = nil
	}
	if p.target != nil {
		p.device.DestroyTexture(p.target)
		p.target = nil
	}
}

// destroyResources releases linked objects in reverse creation order.
func (p *Program) destroyResources() {
	if p.bindGroup != nil {
		p.device.DestroyBindGroup(p.bindGroup)
		p.bindGroup = nil
	}
	if p.uniforms != nil {
		p.device.DestroyBuffer(p.uniforms)
		p.uniforms = nil
	}
	if p.quad != nil {
		p.device.DestroyBuffer(p.quad)
		p.quad = nil
	}
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.uniformLayout != nil {
		p.device.DestroyBindGroupLayout(p.uniformLayout)
		p.uniformLayout = nil
	}
	if p.fsModule != nil {
		p.device.DestroyShaderModule(p.fsModule)
		p.fsModule = nil
	}
	if p.vsModule != nil {
		p.device.DestroyShaderModule(p.vsModule)
		p.vsModule = nil
	}
}
