package gpu

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/glowstage"
	"github.com/gekko3d/glowstage/gpu/shaders"
)

const (
	maxLights   = 4
	sceneFormat = wgpu.TextureFormatRGBA16Float
	depthFormat = wgpu.TextureFormatDepth24Plus
)

// glToWebGPU remaps OpenGL clip depth [-1,1] to WebGPU's [0,1].
var glToWebGPU = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

type lightUniform struct {
	Position [4]float32
	Color    [4]float32
	Params   [4]float32
}

type frameUniforms struct {
	ViewProj   mgl32.Mat4
	CameraPos  [4]float32
	Fog        [4]float32
	LightCount [4]uint32
	Lights     [maxLights]lightUniform
}

type objectUniforms struct {
	Model    mgl32.Mat4
	Color    [4]float32
	Emissive [4]float32
	Flags    [4]float32
}

type compositeUniforms struct {
	Bloom [4]float32
	Flare [4]float32
	Tint  [4]float32
	Texel [4]float32
}

type gpuGeometry struct {
	version     uint64
	vertexBuf   *wgpu.Buffer
	vertexCount uint32
	vertexBytes uint64
	indexBuf    *wgpu.Buffer
	indexCount  uint32
}

func (g *gpuGeometry) release() {
	if g.vertexBuf != nil {
		g.vertexBuf.Release()
	}
	if g.indexBuf != nil {
		g.indexBuf.Release()
	}
}

// gpuMaterial also carries the per-object uniforms; every renderable owns its
// material.
type gpuMaterial struct {
	uniformBuf  *wgpu.Buffer
	bindGroup   *wgpu.BindGroup
	texture     *wgpu.Texture
	textureView *wgpu.TextureView
	textureBG   *wgpu.BindGroup
}

func (m *gpuMaterial) release() {
	if m.textureBG != nil {
		m.textureBG.Release()
	}
	if m.textureView != nil {
		m.textureView.Release()
	}
	if m.texture != nil {
		m.texture.Release()
	}
	if m.bindGroup != nil {
		m.bindGroup.Release()
	}
	if m.uniformBuf != nil {
		m.uniformBuf.Release()
	}
}

type pipelineKey struct {
	primitive glowstage.Primitive
	blend     glowstage.BlendMode
	textured  bool
}

// Renderer draws frames into a glfw window through WebGPU: a forward scene
// pass into an HDR target, then a composite pass (bloom, lens flare, tone
// map, loading overlay) onto the surface.
type Renderer struct {
	logger glowstage.Logger

	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	sceneTexture *wgpu.Texture
	sceneView    *wgpu.TextureView
	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView
	sampler      *wgpu.Sampler

	frameLayout     *wgpu.BindGroupLayout
	objectLayout    *wgpu.BindGroupLayout
	textureLayout   *wgpu.BindGroupLayout
	compositeLayout *wgpu.BindGroupLayout

	plainPipelineLayout    *wgpu.PipelineLayout
	texturedPipelineLayout *wgpu.PipelineLayout

	sceneModule     *wgpu.ShaderModule
	compositeModule *wgpu.ShaderModule

	pipelines         map[pipelineKey]*wgpu.RenderPipeline
	compositePipeline *wgpu.RenderPipeline

	frameBuf     *wgpu.Buffer
	frameBG      *wgpu.BindGroup
	compositeBuf *wgpu.Buffer
	compositeBG  *wgpu.BindGroup

	geometries map[glowstage.AssetId]*gpuGeometry
	materials  map[glowstage.AssetId]*gpuMaterial
}

func NewRenderer(win *glfw.Window, logger glowstage.Logger) (*Renderer, error) {
	if logger == nil {
		logger = glowstage.NewNopLogger()
	}
	r := &Renderer{
		logger:     logger,
		pipelines:  make(map[pipelineKey]*wgpu.RenderPipeline),
		geometries: make(map[glowstage.AssetId]*gpuGeometry),
		materials:  make(map[glowstage.AssetId]*gpuMaterial),
	}

	r.Instance = wgpu.CreateInstance(nil)
	r.Surface = r.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(win))

	adapter, err := r.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: r.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	r.Adapter = adapter

	r.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	r.Queue = r.Device.GetQueue()

	width, height := win.GetFramebufferSize()
	caps := r.Surface.GetCapabilities(adapter)
	r.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(max(width, 1)),
		Height:      uint32(max(height, 1)),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	r.Surface.Configure(adapter, r.Device, r.Config)

	if err := r.setupShared(); err != nil {
		return nil, err
	}
	if err := r.setupTargets(int(r.Config.Width), int(r.Config.Height)); err != nil {
		return nil, err
	}
	logger.Infof("WebGPU renderer ready: %dx%d, surface format %v", r.Config.Width, r.Config.Height, r.Config.Format)
	return r, nil
}

func (r *Renderer) Name() string {
	return "wgpu"
}

func (r *Renderer) setupShared() error {
	var err error
	r.sceneModule, err = r.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Scene Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.SceneWGSL},
	})
	if err != nil {
		return fmt.Errorf("scene shader: %w", err)
	}
	r.compositeModule, err = r.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Composite Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.CompositeWGSL},
	})
	if err != nil {
		return fmt.Errorf("composite shader: %w", err)
	}

	r.sampler, err = r.Device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Linear Clamp Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}

	uniformEntry := func(binding uint32) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
		}
	}
	textureEntry := func(binding uint32) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		}
	}
	samplerEntry := func(binding uint32) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageFragment,
			Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
		}
	}

	if r.frameLayout, err = r.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Frame Layout",
		Entries: []wgpu.BindGroupLayoutEntry{uniformEntry(0)},
	}); err != nil {
		return fmt.Errorf("frame layout: %w", err)
	}
	if r.objectLayout, err = r.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Object Layout",
		Entries: []wgpu.BindGroupLayoutEntry{uniformEntry(0)},
	}); err != nil {
		return fmt.Errorf("object layout: %w", err)
	}
	if r.textureLayout, err = r.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Label Texture Layout",
		Entries: []wgpu.BindGroupLayoutEntry{textureEntry(0), samplerEntry(1)},
	}); err != nil {
		return fmt.Errorf("texture layout: %w", err)
	}
	if r.compositeLayout, err = r.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Composite Layout",
		Entries: []wgpu.BindGroupLayoutEntry{uniformEntry(0), textureEntry(1), samplerEntry(2)},
	}); err != nil {
		return fmt.Errorf("composite layout: %w", err)
	}

	if r.plainPipelineLayout, err = r.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Scene",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.frameLayout, r.objectLayout},
	}); err != nil {
		return fmt.Errorf("scene pipeline layout: %w", err)
	}
	if r.texturedPipelineLayout, err = r.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Scene Textured",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.frameLayout, r.objectLayout, r.textureLayout},
	}); err != nil {
		return fmt.Errorf("textured pipeline layout: %w", err)
	}
	compositePipelineLayout, err := r.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Composite",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.compositeLayout},
	})
	if err != nil {
		return fmt.Errorf("composite pipeline layout: %w", err)
	}

	r.compositePipeline, err = r.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Composite Pipeline",
		Layout: compositePipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     r.compositeModule,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     r.compositeModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    r.Config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("composite pipeline: %w", err)
	}

	r.frameBuf, err = r.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Frame Uniforms",
		Size:  uint64(unsafe.Sizeof(frameUniforms{})),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("frame uniforms: %w", err)
	}
	r.frameBG, err = r.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Frame Bind Group",
		Layout: r.frameLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: r.frameBuf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("frame bind group: %w", err)
	}

	r.compositeBuf, err = r.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Composite Uniforms",
		Size:  uint64(unsafe.Sizeof(compositeUniforms{})),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("composite uniforms: %w", err)
	}
	return nil
}

// setupTargets (re)creates everything sized to the surface: the HDR scene
// target, the depth buffer and the composite bind group reading the former.
func (r *Renderer) setupTargets(width, height int) error {
	r.releaseTargets()

	size := wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}
	var err error
	r.sceneTexture, err = r.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Scene HDR Texture",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        sceneFormat,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("scene texture: %w", err)
	}
	if r.sceneView, err = r.sceneTexture.CreateView(nil); err != nil {
		return fmt.Errorf("scene view: %w", err)
	}

	r.depthTexture, err = r.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Depth Texture",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        depthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("depth texture: %w", err)
	}
	if r.depthView, err = r.depthTexture.CreateView(nil); err != nil {
		return fmt.Errorf("depth view: %w", err)
	}

	r.compositeBG, err = r.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Composite Bind Group",
		Layout: r.compositeLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: r.compositeBuf, Size: wgpu.WholeSize},
			{Binding: 1, TextureView: r.sceneView},
			{Binding: 2, Sampler: r.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("composite bind group: %w", err)
	}
	return nil
}

func (r *Renderer) releaseTargets() {
	if r.compositeBG != nil {
		r.compositeBG.Release()
		r.compositeBG = nil
	}
	if r.sceneView != nil {
		r.sceneView.Release()
		r.sceneView = nil
	}
	if r.sceneTexture != nil {
		r.sceneTexture.Release()
		r.sceneTexture = nil
	}
	if r.depthView != nil {
		r.depthView.Release()
		r.depthView = nil
	}
	if r.depthTexture != nil {
		r.depthTexture.Release()
		r.depthTexture = nil
	}
}

// Resize reconfigures the surface and every size-dependent target.
func (r *Renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.Config.Width = uint32(width)
	r.Config.Height = uint32(height)
	r.Surface.Configure(r.Adapter, r.Device, r.Config)
	if err := r.setupTargets(width, height); err != nil {
		r.logger.Errorf("resize to %dx%d: %v", width, height, err)
		return
	}
	r.logger.Debugf("surface resized to %dx%d", width, height)
}

func blendState(mode glowstage.BlendMode) *wgpu.BlendState {
	switch mode {
	case glowstage.BlendAlpha:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	case glowstage.BlendAdditive:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	}
	return nil
}

func topology(p glowstage.Primitive) wgpu.PrimitiveTopology {
	switch p {
	case glowstage.PrimitiveLines:
		return wgpu.PrimitiveTopologyLineList
	case glowstage.PrimitivePoints:
		return wgpu.PrimitiveTopologyPointList
	}
	return wgpu.PrimitiveTopologyTriangleList
}

func (r *Renderer) pipeline(key pipelineKey) (*wgpu.RenderPipeline, error) {
	if p, ok := r.pipelines[key]; ok {
		return p, nil
	}

	layout := r.plainPipelineLayout
	entry := "fs_main"
	if key.textured {
		layout = r.texturedPipelineLayout
		entry = "fs_textured"
	}

	p, err := r.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("Scene Pipeline %d/%d/%v", key.primitive, key.blend, key.textured),
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     r.sceneModule,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: uint64(unsafe.Sizeof(glowstage.Vertex{})),
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     r.sceneModule,
			EntryPoint: entry,
			Targets: []wgpu.ColorTargetState{{
				Format:    sceneFormat,
				Blend:     blendState(key.blend),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology(key.primitive),
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: key.blend == glowstage.BlendOpaque,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scene pipeline: %w", err)
	}
	r.pipelines[key] = p
	return p, nil
}

// ensureGeometry uploads new geometry and rewrites vertices whose Version moved.
func (r *Renderer) ensureGeometry(g *glowstage.Geometry) (*gpuGeometry, error) {
	gg, ok := r.geometries[g.Handle]
	vertexBytes := wgpu.ToBytes(g.Vertices)
	if ok {
		if gg.version == g.Version {
			return gg, nil
		}
		if uint64(len(vertexBytes)) == gg.vertexBytes {
			r.Queue.WriteBuffer(gg.vertexBuf, 0, vertexBytes)
			gg.version = g.Version
			return gg, nil
		}
		gg.release()
		delete(r.geometries, g.Handle)
	}

	vb, err := r.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Vertices " + string(g.Handle),
		Contents: vertexBytes,
		Usage:    wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex buffer: %w", err)
	}
	gg = &gpuGeometry{
		version:     g.Version,
		vertexBuf:   vb,
		vertexCount: uint32(len(g.Vertices)),
		vertexBytes: uint64(len(vertexBytes)),
	}
	if len(g.Indices) > 0 {
		ib, err := r.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    "Indices " + string(g.Handle),
			Contents: wgpu.ToBytes(g.Indices),
			Usage:    wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			vb.Release()
			return nil, fmt.Errorf("index buffer: %w", err)
		}
		gg.indexBuf = ib
		gg.indexCount = uint32(len(g.Indices))
	}
	r.geometries[g.Handle] = gg
	return gg, nil
}

func (r *Renderer) ensureMaterial(m *glowstage.Material) (*gpuMaterial, error) {
	if gm, ok := r.materials[m.Handle]; ok {
		return gm, nil
	}

	buf, err := r.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Object Uniforms " + string(m.Handle),
		Size:  uint64(unsafe.Sizeof(objectUniforms{})),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("object uniforms: %w", err)
	}
	gm := &gpuMaterial{uniformBuf: buf}
	gm.bindGroup, err = r.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  r.objectLayout,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: buf, Size: wgpu.WholeSize}},
	})
	if err != nil {
		gm.release()
		return nil, fmt.Errorf("object bind group: %w", err)
	}

	if m.Texture != nil && m.Texture.Image != nil {
		if err := r.uploadTexture(gm, m.Texture); err != nil {
			gm.release()
			return nil, err
		}
	}
	r.materials[m.Handle] = gm
	return gm, nil
}

func (r *Renderer) uploadTexture(gm *gpuMaterial, tex *glowstage.Texture) error {
	img := tex.Image
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	size := wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1}

	var err error
	gm.texture, err = r.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Texture " + string(tex.Handle),
		Size:          size,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("texture: %w", err)
	}
	r.Queue.WriteTexture(gm.texture.AsImageCopy(), img.Pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(img.Stride),
		RowsPerImage: uint32(h),
	}, &size)

	if gm.textureView, err = gm.texture.CreateView(nil); err != nil {
		return fmt.Errorf("texture view: %w", err)
	}
	gm.textureBG, err = r.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: r.textureLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: gm.textureView},
			{Binding: 1, Sampler: r.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("texture bind group: %w", err)
	}
	return nil
}

func (r *Renderer) ReleaseGeometry(id glowstage.AssetId) {
	if g, ok := r.geometries[id]; ok {
		g.release()
		delete(r.geometries, id)
	}
}

func (r *Renderer) ReleaseMaterial(id glowstage.AssetId) {
	if m, ok := r.materials[id]; ok {
		m.release()
		delete(r.materials, id)
	}
}

func vec4(v mgl32.Vec3, w float32) [4]float32 {
	return [4]float32{v.X(), v.Y(), v.Z(), w}
}

func boolf(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func (r *Renderer) writeFrameUniforms(frame *glowstage.Frame) {
	u := frameUniforms{
		ViewProj:  glToWebGPU.Mul4(frame.Projection).Mul4(frame.View),
		CameraPos: vec4(frame.CameraPosition, 1),
		Fog:       vec4(frame.Fog.Color, frame.Fog.Density),
	}
	n := min(len(frame.Lights), maxLights)
	u.LightCount[0] = uint32(n)
	for i := 0; i < n; i++ {
		l := frame.Lights[i]
		cosHalf := float32(math.Cos(float64(mgl32.DegToRad(l.ConeAngle / 2))))
		u.Lights[i] = lightUniform{
			Position: vec4(l.Position, float32(l.Type)),
			Color:    vec4(l.Color, l.Intensity),
			Params:   [4]float32{l.Range, cosHalf, 0, 0},
		}
	}
	r.Queue.WriteBuffer(r.frameBuf, 0, wgpu.ToBytes([]frameUniforms{u}))
}

func (r *Renderer) writeCompositeUniforms(frame *glowstage.Frame) {
	fx := frame.PostFX
	u := compositeUniforms{
		Bloom: [4]float32{fx.Bloom.Strength, fx.Bloom.Radius, fx.Bloom.Threshold, fx.Exposure},
		Flare: [4]float32{fx.LensFlare.LightPosition.X(), fx.LensFlare.LightPosition.Y(), fx.LensFlare.Intensity, fx.OverlayOpacity},
		Tint:  vec4(frame.FlareTint, 1),
		Texel: [4]float32{1 / float32(r.Config.Width), 1 / float32(r.Config.Height), 0, 0},
	}
	r.Queue.WriteBuffer(r.compositeBuf, 0, wgpu.ToBytes([]compositeUniforms{u}))
}

type preparedItem struct {
	pipeline *wgpu.RenderPipeline
	geometry *gpuGeometry
	material *gpuMaterial
}

// Draw renders one frame and presents it.
func (r *Renderer) Draw(frame *glowstage.Frame) error {
	r.writeFrameUniforms(frame)
	r.writeCompositeUniforms(frame)

	items := make([]preparedItem, 0, len(frame.Items))
	for _, item := range frame.Items {
		obj := item.Renderable
		gg, err := r.ensureGeometry(obj.Geometry)
		if err != nil {
			return fmt.Errorf("%s: %w", obj.Name, err)
		}
		gm, err := r.ensureMaterial(obj.Material)
		if err != nil {
			return fmt.Errorf("%s: %w", obj.Name, err)
		}
		p, err := r.pipeline(pipelineKey{
			primitive: obj.Geometry.Primitive,
			blend:     obj.Material.Blend,
			textured:  gm.textureBG != nil,
		})
		if err != nil {
			return err
		}

		mat := obj.Material
		u := objectUniforms{
			Model:    item.World,
			Color:    vec4(mat.Color, mat.Opacity),
			Emissive: vec4(mat.Emissive, mat.EmissiveIntensity),
			Flags:    [4]float32{boolf(mat.Lit), boolf(gm.textureBG != nil), 0, 0},
		}
		r.Queue.WriteBuffer(gm.uniformBuf, 0, wgpu.ToBytes([]objectUniforms{u}))
		items = append(items, preparedItem{pipeline: p, geometry: gg, material: gm})
	}

	surfaceTexture, err := r.Surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("get current texture: %w", err)
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("surface view: %w", err)
	}
	defer view.Release()

	encoder, err := r.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("command encoder: %w", err)
	}
	defer encoder.Release()

	clear := frame.ClearColor
	scenePass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       r.sceneView,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: float64(clear.X()), G: float64(clear.Y()), B: float64(clear.Z()), A: 1},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            r.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	scenePass.SetBindGroup(0, r.frameBG, nil)
	for _, it := range items {
		scenePass.SetPipeline(it.pipeline)
		scenePass.SetBindGroup(1, it.material.bindGroup, nil)
		if it.material.textureBG != nil {
			scenePass.SetBindGroup(2, it.material.textureBG, nil)
		}
		scenePass.SetVertexBuffer(0, it.geometry.vertexBuf, 0, wgpu.WholeSize)
		if it.geometry.indexBuf != nil {
			scenePass.SetIndexBuffer(it.geometry.indexBuf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
			scenePass.DrawIndexed(it.geometry.indexCount, 1, 0, 0, 0)
		} else {
			scenePass.Draw(it.geometry.vertexCount, 1, 0, 0)
		}
	}
	if err := scenePass.End(); err != nil {
		return fmt.Errorf("scene pass: %w", err)
	}

	compositePass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	compositePass.SetPipeline(r.compositePipeline)
	compositePass.SetBindGroup(0, r.compositeBG, nil)
	compositePass.Draw(3, 1, 0, 0)
	if err := compositePass.End(); err != nil {
		return fmt.Errorf("composite pass: %w", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("encoder finish: %w", err)
	}
	defer cmd.Release()

	r.Queue.Submit(cmd)
	r.Surface.Present()
	return nil
}

// Release frees every GPU object the renderer owns.
func (r *Renderer) Release() {
	for id := range r.geometries {
		r.ReleaseGeometry(id)
	}
	for id := range r.materials {
		r.ReleaseMaterial(id)
	}
	for key, p := range r.pipelines {
		p.Release()
		delete(r.pipelines, key)
	}
	r.releaseTargets()
	if r.compositePipeline != nil {
		r.compositePipeline.Release()
	}
	if r.frameBG != nil {
		r.frameBG.Release()
	}
	if r.frameBuf != nil {
		r.frameBuf.Release()
	}
	if r.compositeBuf != nil {
		r.compositeBuf.Release()
	}
	if r.sampler != nil {
		r.sampler.Release()
	}
	if r.Surface != nil {
		r.Surface.Release()
	}
	if r.Device != nil {
		r.Device.Release()
	}
	if r.Adapter != nil {
		r.Adapter.Release()
	}
	if r.Instance != nil {
		r.Instance.Release()
	}
}
