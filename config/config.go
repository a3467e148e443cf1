// Package config reads and writes the INI file holding the general options,
// the key bindings and the toggle groups.
//
// Integer keys that are absent or unparsable read as Unset and fall back to
// their defaults. A file without General.AmountGroups is in the legacy
// format: a single group whose hashes live in the bare PixelShaders,
// VertexShaders and ComputeShaders sections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/gogpu/shadertoggle/constant"
	"github.com/gogpu/shadertoggle/group"
	"github.com/gogpu/shadertoggle/internal/logx"
)

// Unset is the value of an integer key that is absent.
const Unset = math.MaxUint32

// Errors returned by the package.
var (
	ErrNotFound = errors.New("config: file not found")
	ErrInvalid  = errors.New("config: invalid file")
)

const (
	sectionGeneral     = "General"
	sectionKeybindings = "Keybindings"
)

// General holds the device-wide options.
type General struct {
	TrackDescriptors     bool
	ResourceShim         string
	ConstantHookType     string
	ConstantCopyType     string
	PreventRuntimeReload bool
}

// Keybind names one of the hunting key bindings.
type Keybind int

// Key bindings.
const (
	PixelShaderDown Keybind = iota
	PixelShaderUp
	PixelShaderMark
	PixelShaderMarkedDown
	PixelShaderMarkedUp
	VertexShaderDown
	VertexShaderUp
	VertexShaderMark
	VertexShaderMarkedDown
	VertexShaderMarkedUp
	InvocationDown
	InvocationUp
	DescriptorDown
	DescriptorUp
	KeybindCount
)

var keybindNames = [KeybindCount]string{
	"PIXEL_SHADER_DOWN",
	"PIXEL_SHADER_UP",
	"PIXEL_SHADER_MARK",
	"PIXEL_SHADER_MARKED_DOWN",
	"PIXEL_SHADER_MARKED_UP",
	"VERTEX_SHADER_DOWN",
	"VERTEX_SHADER_UP",
	"VERTEX_SHADER_MARK",
	"VERTEX_SHADER_MARKED_DOWN",
	"VERTEX_SHADER_MARKED_UP",
	"INVOCATION_DOWN",
	"INVOCATION_UP",
	"DESCRIPTOR_DOWN",
	"DESCRIPTOR_UP",
}

func (k Keybind) String() string {
	if k >= 0 && k < KeybindCount {
		return keybindNames[k]
	}
	return "unknown"
}

// Virtual key codes used by the default bindings. A binding packs a key in
// its low byte and modifier keys in the bytes above.
const (
	vkControl  = 0x11
	vkNumpad1  = 0x61
	vkNumpad2  = 0x62
	vkNumpad3  = 0x63
	vkNumpad4  = 0x64
	vkNumpad5  = 0x65
	vkNumpad6  = 0x66
	vkNumpad7  = 0x67
	vkNumpad8  = 0x68
	vkAdd      = 0x6b
	vkSubtract = 0x6d
)

// Keybindings maps every Keybind to its packed key combination.
type Keybindings [KeybindCount]uint32

// DefaultKeybindings returns the built-in bindings.
func DefaultKeybindings() Keybindings {
	return Keybindings{
		PixelShaderDown:        vkNumpad1,
		PixelShaderUp:          vkNumpad2,
		PixelShaderMark:        vkNumpad3,
		PixelShaderMarkedDown:  vkNumpad1 | vkControl<<8,
		PixelShaderMarkedUp:    vkNumpad2 | vkControl<<8,
		VertexShaderDown:       vkNumpad4,
		VertexShaderUp:         vkNumpad5,
		VertexShaderMark:       vkNumpad6,
		VertexShaderMarkedDown: vkNumpad4 | vkControl<<8,
		VertexShaderMarkedUp:   vkNumpad5 | vkControl<<8,
		InvocationDown:         vkNumpad7,
		InvocationUp:           vkNumpad8,
		DescriptorDown:         vkSubtract,
		DescriptorUp:           vkAdd,
	}
}

// Config is the content of a configuration file.
type Config struct {
	General     General
	Keybindings Keybindings
	Groups      []group.Settings

	// Legacy is set when the file was read in the legacy format.
	Legacy bool
}

// Default returns the configuration used when there is no file.
func Default() *Config {
	return &Config{
		General: General{
			TrackDescriptors: true,
			ResourceShim:     "none",
			ConstantHookType: "default",
			ConstantCopyType: constant.CopierGPUReadback,
		},
		Keybindings: DefaultKeybindings(),
	}
}

// Load reads the file at path. A missing file yields ErrNotFound.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logx.L().Info("config: loaded", "path", path, "groups", len(c.Groups), "legacy", c.Legacy)
	return c, nil
}

// Parse reads a configuration from INI data.
func Parse(data []byte) (*Config, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	c := Default()
	gen := f.Section(sectionGeneral)
	c.General.TrackDescriptors = gen.Key("TrackDescriptors").MustBool(true)
	c.General.PreventRuntimeReload = gen.Key("PreventRuntimeReload").MustBool(false)
	if v := gen.Key("ResourceShim").String(); v != "" {
		c.General.ResourceShim = v
	}
	if v := gen.Key("ConstantBufferHookType").String(); v != "" {
		c.General.ConstantHookType = v
	}
	if v := gen.Key("ConstantBufferHookCopyType").String(); v != "" {
		c.General.ConstantCopyType = v
	}

	keys := f.Section(sectionKeybindings)
	for i, name := range keybindNames {
		if v := readUint(keys, name); v != Unset {
			c.Keybindings[i] = v
		}
	}

	if !gen.HasKey("AmountGroups") {
		c.Legacy = true
		s := group.DefaultSettings("")
		s.Hashes[group.StagePixel] = readHashes(f.Section("PixelShaders"))
		s.Hashes[group.StageVertex] = readHashes(f.Section("VertexShaders"))
		s.Hashes[group.StageCompute] = readHashes(f.Section("ComputeShaders"))
		c.Groups = append(c.Groups, s)
		return c, nil
	}

	n, err := gen.Key("AmountGroups").Int()
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: AmountGroups %q", ErrInvalid, gen.Key("AmountGroups").String())
	}
	for i := range n {
		c.Groups = append(c.Groups, readGroup(f, i))
	}
	return c, nil
}

// lookupUint reads an integer key. It reports false when the key is absent
// or unparsable.
func lookupUint(sec *ini.Section, name string) (uint32, bool) {
	if !sec.HasKey(name) {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(sec.Key(name).String()), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func readUint(sec *ini.Section, name string) uint32 {
	if v, ok := lookupUint(sec, name); ok {
		return v
	}
	return Unset
}

func readUintOr(sec *ini.Section, name string, def uint32) uint32 {
	if v := readUint(sec, name); v != Unset {
		return v
	}
	return def
}

func readHashes(sec *ini.Section) group.HashSet {
	hs := make(group.HashSet)
	n := sec.Key("AmountHashes").MustInt(0)
	for i := range n {
		// Every 32-bit value is a valid hash, so only presence counts.
		if h, ok := lookupUint(sec, "ShaderHash"+strconv.Itoa(i)); ok {
			hs[h] = struct{}{}
		}
	}
	return hs
}

func groupSections(i int) (root, pixel, vertex, compute, constants string) {
	root = "Group" + strconv.Itoa(i)
	return root, root + "_PixelShaders", root + "_VertexShaders", root + "_ComputeShaders", root + "_Constants"
}

func callSite(v uint32, def group.CallSite) group.CallSite {
	if v == Unset {
		return def
	}
	return min(group.CallSite(v), group.CallBindRenderTarget)
}

func matchMode(v uint32, def group.MatchMode) group.MatchMode {
	if v == Unset {
		return def
	}
	return min(group.MatchMode(v), group.MatchNone)
}

func stage(v uint32) group.Stage {
	if v >= uint32(group.StageCount) {
		return group.StagePixel
	}
	return group.Stage(v)
}

func readGroup(f *ini.File, i int) group.Settings {
	rootName, pixel, vertex, compute, constants := groupSections(i)
	root := f.Section(rootName)

	s := group.DefaultSettings(root.Key("Name").String())
	s.Hashes[group.StagePixel] = readHashes(f.Section(pixel))
	s.Hashes[group.StageVertex] = readHashes(f.Section(vertex))
	s.Hashes[group.StageCompute] = readHashes(f.Section(compute))

	cs := f.Section(constants)
	for j := range cs.Key("AmountConstants").MustInt(0) {
		n := strconv.Itoa(j)
		offset := readUint(cs, "Offset"+n)
		name := cs.Key("Variable" + n).String()
		if offset == Unset || name == "" {
			continue
		}
		s.Vars[name] = group.VarMapping{Offset: offset, UsePrevious: cs.Key("UsePreviousValue" + n).MustBool(false)}
	}

	s.ToggleKey = readUintOr(root, "ToggleKey", group.VKCapital)
	s.Active = root.Key("Active").MustBool(false)

	s.Invocation = callSite(readUint(root, "InvocationLocation"), group.CallDraw)
	s.Match = matchMode(readUint(root, "MatchSwapchainResolutionOnly"), group.MatchResolution)
	s.Requeue = root.Key("RequeueAfterRTMatchingFailure").MustBool(false)

	if t := root.Key("Techniques").String(); t != "" {
		s.SetTechniques(strings.Split(t, ","))
	}
	s.AllowAllTechniques = root.Key("AllowAllTechniques").MustBool(false)
	s.TechniqueExceptions = root.Key("TechniqueExceptions").MustBool(false)

	s.ProvideTextureBinding = root.Key("ProvideTextureBinding").MustBool(false)
	s.TextureBindingName = root.Key("TextureBindingName").String()
	s.ClearBindings = root.Key("ClearTextureBindings").MustBool(true)
	s.CopyTextureBinding = root.Key("CopyTextureBinding").MustBool(true)
	s.FlipBufferBinding = root.Key("FlipBufferBinding").MustBool(false)

	s.ExtractConstants = root.Key("ExtractConstants").MustBool(false)
	s.ConstantSlot = readUintOr(root, "ConstantPipelineSlot", 2)
	s.ConstantDescriptor = readUintOr(root, "ConstantDescriptorIndex", 0)
	s.ConstantPushMode = root.Key("ConstantPushMode").MustBool(false)
	s.ConstantStage = stage(readUint(root, "ConstantShaderStage"))

	s.ExtractSRVs = root.Key("ExtractSRVs").MustBool(false)
	s.SRVSlot = readUintOr(root, "SRVPipelineSlot", 1)
	s.SRVDescriptor = readUintOr(root, "SRVDescriptorIndex", 0)
	s.SRVStage = stage(readUint(root, "SRVShaderStage"))

	// Older files shared one index for render targets and constant
	// descriptors.
	s.RenderTargetIndex = readUintOr(root, "RenderTargetIndex", s.ConstantDescriptor)
	s.BindingRenderTargetIndex = readUintOr(root, "BindingRenderTargetIndex", s.ConstantDescriptor)
	s.BindingInvocation = callSite(readUint(root, "BindingInvocationLocation"), s.Invocation)
	s.BindingMatch = matchMode(readUint(root, "BindingMatchSwapchainResolutionOnly"), s.Match)

	s.ClearPreviewAlpha = root.Key("ClearPreviewAlpha").MustBool(true)
	s.Tonemap = root.Key("TonemapHDRtoSDRtoHDR").MustBool(false)
	s.PreserveAlpha = root.Key("PreserveTargetAlphaChannel").MustBool(false)
	s.FlipBuffer = root.Key("FlipBuffer").MustBool(false)
	return s
}

// File returns c as an INI file.
func (c *Config) File() *ini.File {
	f := ini.Empty()
	gen := f.Section(sectionGeneral)
	set(gen, "ResourceShim", c.General.ResourceShim)
	set(gen, "ConstantBufferHookType", c.General.ConstantHookType)
	set(gen, "ConstantBufferHookCopyType", c.General.ConstantCopyType)
	setBool(gen, "TrackDescriptors", c.General.TrackDescriptors)
	setBool(gen, "PreventRuntimeReload", c.General.PreventRuntimeReload)

	keys := f.Section(sectionKeybindings)
	for i, name := range keybindNames {
		setUint(keys, name, c.Keybindings[i])
	}

	set(gen, "AmountGroups", strconv.Itoa(len(c.Groups)))
	for i := range c.Groups {
		writeGroup(f, i, &c.Groups[i])
	}
	return f
}

func set(sec *ini.Section, name, value string) {
	sec.Key(name).SetValue(value)
}

func setBool(sec *ini.Section, name string, v bool) {
	set(sec, name, strconv.FormatBool(v))
}

func setUint(sec *ini.Section, name string, v uint32) {
	set(sec, name, strconv.FormatUint(uint64(v), 10))
}

func writeHashes(sec *ini.Section, hs group.HashSet) {
	sorted := hs.Sorted()
	for i, h := range sorted {
		setUint(sec, "ShaderHash"+strconv.Itoa(i), h)
	}
	set(sec, "AmountHashes", strconv.Itoa(len(sorted)))
}

func writeGroup(f *ini.File, i int, s *group.Settings) {
	rootName, pixel, vertex, compute, constants := groupSections(i)
	writeHashes(f.Section(vertex), s.Hashes[group.StageVertex])
	writeHashes(f.Section(pixel), s.Hashes[group.StagePixel])
	writeHashes(f.Section(compute), s.Hashes[group.StageCompute])

	cs := f.Section(constants)
	names := make([]string, 0, len(s.Vars))
	for name := range s.Vars {
		names = append(names, name)
	}
	slices.Sort(names)
	for j, name := range names {
		n := strconv.Itoa(j)
		setUint(cs, "Offset"+n, s.Vars[name].Offset)
		set(cs, "Variable"+n, name)
		setBool(cs, "UsePreviousValue"+n, s.Vars[name].UsePrevious)
	}
	set(cs, "AmountConstants", strconv.Itoa(len(names)))

	root := f.Section(rootName)
	set(root, "Name", s.Name)
	setUint(root, "ToggleKey", s.ToggleKey)
	setBool(root, "Active", s.Active)
	setUint(root, "RenderTargetIndex", s.RenderTargetIndex)
	setUint(root, "InvocationLocation", uint32(s.Invocation))
	setUint(root, "MatchSwapchainResolutionOnly", uint32(s.Match))
	setBool(root, "RequeueAfterRTMatchingFailure", s.Requeue)

	set(root, "Techniques", strings.Join(s.Techniques, ","))
	setBool(root, "AllowAllTechniques", s.AllowAllTechniques)
	setBool(root, "TechniqueExceptions", s.TechniqueExceptions)

	setBool(root, "ProvideTextureBinding", s.ProvideTextureBinding)
	set(root, "TextureBindingName", s.TextureBindingName)
	setBool(root, "ClearTextureBindings", s.ClearBindings)
	setBool(root, "CopyTextureBinding", s.CopyTextureBinding)
	setBool(root, "FlipBufferBinding", s.FlipBufferBinding)

	setBool(root, "ExtractConstants", s.ExtractConstants)
	setUint(root, "ConstantPipelineSlot", s.ConstantSlot)
	setUint(root, "ConstantDescriptorIndex", s.ConstantDescriptor)
	setBool(root, "ConstantPushMode", s.ConstantPushMode)
	setUint(root, "ConstantShaderStage", uint32(s.ConstantStage))

	setBool(root, "ExtractSRVs", s.ExtractSRVs)
	setUint(root, "SRVPipelineSlot", s.SRVSlot)
	setUint(root, "SRVDescriptorIndex", s.SRVDescriptor)
	setUint(root, "SRVShaderStage", uint32(s.SRVStage))
	setUint(root, "BindingRenderTargetIndex", s.BindingRenderTargetIndex)
	setUint(root, "BindingInvocationLocation", uint32(s.BindingInvocation))
	setUint(root, "BindingMatchSwapchainResolutionOnly", uint32(s.BindingMatch))
	setBool(root, "ClearPreviewAlpha", s.ClearPreviewAlpha)
	setBool(root, "TonemapHDRtoSDRtoHDR", s.Tonemap)
	setBool(root, "PreserveTargetAlphaChannel", s.PreserveAlpha)
	setBool(root, "FlipBuffer", s.FlipBuffer)
}

// WriteTo writes c in INI format to w.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	return c.File().WriteTo(w)
}

// Bytes returns c in INI format.
func (c *Config) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes c to path.
func (c *Config) Save(path string) error {
	if err := c.File().SaveTo(path); err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	logx.L().Info("config: saved", "path", path, "groups", len(c.Groups))
	return nil
}
