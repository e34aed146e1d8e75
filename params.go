package ngc

import (
	"sort"
	"strings"
)

const (
	// MaxParam is the highest numbered parameter.
	MaxParam = 5601

	maxLocals = 30 // #1 to #30 are subroutine arguments

	homeParam          = 5161 // G28 position; X, Y, Z, A, B, C
	home2Param         = 5181 // G30 position
	g92EnabledParam    = 5210
	g92Param           = 5211
	coordSysIndexParam = 5220
	coordSysParam      = 5221 // Nine sets of coordinate system parameters starting here.
	coordSysParamStep  = 20   // Gap between each coordinate system's parameters.
	coordSysCount      = 9
	toolParam          = 5400 // tool number, 5401-5409 offsets, 5410 diameter
	toolParamLast      = 5413
	positionParam      = 5420 // current position; X to W
	positionParamLast  = 5428

	numAxes = 6
)

// binding gives parameters whose storage lives outside of Params; Setup
// implements it.
type binding interface {
	boundParam(num int) (float64, bool)
	setBoundParam(num int, val float64) (bool, error)
	systemParam(name string) (float64, bool)
}

type scope struct {
	saved [maxLocals]float64
	names map[string]float64
}

type change struct {
	num   int
	name  string
	scope int
	old   float64
	had   bool
}

// Params holds numbered and named parameters. Named parameters beginning
// with an underscore are global; all other names are local to the current
// subroutine call.
type Params struct {
	nums    [MaxParam + 1]float64
	globals map[string]float64
	scopes  []scope
	bind    binding

	journal []change
	logging bool
}

func NewParams() *Params {
	return &Params{
		globals: map[string]float64{},
		scopes:  []scope{{names: map[string]float64{}}},
	}
}

func readOnlyNum(num int) bool {
	return (num >= toolParam && num <= toolParamLast) ||
		(num >= positionParam && num <= positionParamLast)
}

func checkNum(num int) error {
	if num < 1 || num > MaxParam {
		return errorf(ParameterError, "#%d: out of range", num)
	}
	return nil
}

// Num returns the value of a numbered parameter.
func (p *Params) Num(num int) (float64, error) {
	if err := checkNum(num); err != nil {
		return 0, err
	}
	if p.bind != nil {
		if val, ok := p.bind.boundParam(num); ok {
			return val, nil
		}
	}
	return p.nums[num], nil
}

// SetNum sets a numbered parameter.
func (p *Params) SetNum(num int, val float64) error {
	if err := checkNum(num); err != nil {
		return err
	}
	if readOnlyNum(num) {
		return errorf(ParameterError, "#%d: read-only", num)
	}

	old, _ := p.Num(num)
	if err := p.setNum(num, val); err != nil {
		return err
	}
	if p.logging {
		p.journal = append(p.journal, change{num: num, old: old, had: true})
	}
	return nil
}

func (p *Params) setNum(num int, val float64) error {
	if p.bind != nil {
		ok, err := p.bind.setBoundParam(num, val)
		if err != nil {
			return err
		} else if ok {
			return nil
		}
	}
	p.nums[num] = val
	return nil
}

func globalName(name string) bool {
	return strings.HasPrefix(name, "_")
}

func (p *Params) namesFor(name string) map[string]float64 {
	if globalName(name) {
		return p.globals
	}
	return p.scopes[len(p.scopes)-1].names
}

// Name returns the value of a named parameter.
func (p *Params) Name(name string) (float64, error) {
	if p.bind != nil {
		if val, ok := p.bind.systemParam(name); ok {
			return val, nil
		}
	}
	val, ok := p.namesFor(name)[name]
	if !ok {
		return 0, errorf(ParameterError, "#<%s>: undefined", name)
	}
	return val, nil
}

// Exists reports whether a named parameter is defined in the current scope.
func (p *Params) Exists(name string) bool {
	if p.bind != nil {
		if _, ok := p.bind.systemParam(name); ok {
			return true
		}
	}
	_, ok := p.namesFor(name)[name]
	return ok
}

// SetName sets a named parameter, creating it if necessary.
func (p *Params) SetName(name string, val float64) error {
	if p.bind != nil {
		if _, ok := p.bind.systemParam(name); ok {
			return errorf(ParameterError, "#<%s>: read-only", name)
		}
	}

	names := p.namesFor(name)
	old, had := names[name]
	names[name] = val
	if p.logging {
		p.journal = append(p.journal,
			change{name: name, scope: len(p.scopes) - 1, old: old, had: had})
	}
	return nil
}

// PushScope starts a subroutine call: the caller's #1 to #30 are saved and
// replaced by args (missing arguments are zero), and local names start
// empty.
func (p *Params) PushScope(args []float64) error {
	if len(args) > maxLocals {
		return errorf(ParameterError, "too many arguments: %d", len(args))
	}

	var s scope
	copy(s.saved[:], p.nums[1:maxLocals+1])
	s.names = map[string]float64{}
	for n := 1; n <= maxLocals; n++ {
		if n <= len(args) {
			p.nums[n] = args[n-1]
		} else {
			p.nums[n] = 0
		}
	}
	p.scopes = append(p.scopes, s)
	return nil
}

// PopScope ends a subroutine call and restores the caller's locals.
func (p *Params) PopScope() error {
	if len(p.scopes) == 1 {
		return errorf(ControlFlowError, "no subroutine scope to return from")
	}
	s := p.scopes[len(p.scopes)-1]
	copy(p.nums[1:maxLocals+1], s.saved[:])
	p.scopes = p.scopes[:len(p.scopes)-1]
	return nil
}

// Depth returns the number of active subroutine scopes.
func (p *Params) Depth() int {
	return len(p.scopes) - 1
}

func (p *Params) unwind() {
	for len(p.scopes) > 1 {
		p.PopScope()
	}
}

func (p *Params) begin() {
	p.journal = p.journal[:0]
	p.logging = true
}

func (p *Params) commit() {
	p.journal = p.journal[:0]
	p.logging = false
}

// rollback undoes every assignment since begin.
func (p *Params) rollback() {
	for i := len(p.journal) - 1; i >= 0; i-- {
		c := p.journal[i]
		if c.name == "" {
			p.setNum(c.num, c.old)
			continue
		}

		names := p.globals
		if !globalName(c.name) && c.scope < len(p.scopes) {
			names = p.scopes[c.scope].names
		}
		if c.had {
			names[c.name] = c.old
		} else {
			delete(names, c.name)
		}
	}
	p.commit()
}

func persistentNum(num int) bool {
	if num >= homeParam && num < homeParam+numAxes {
		return true
	} else if num >= home2Param && num < home2Param+numAxes {
		return true
	} else if num >= g92EnabledParam && num < g92Param+numAxes {
		return true
	} else if num == coordSysIndexParam {
		return true
	} else if num >= coordSysParam && num < coordSysParam+coordSysParamStep*coordSysCount {
		return (num-coordSysParam)%coordSysParamStep < numAxes
	}
	return false
}

// Persistent returns the parameters which are saved between runs: the
// bound machine parameters and any other non-zero parameter above #30.
func (p *Params) Persistent() map[int]float64 {
	vals := map[int]float64{}
	for num := maxLocals + 1; num < toolParam; num++ {
		val, _ := p.Num(num)
		if persistentNum(num) || val != 0 {
			vals[num] = val
		}
	}
	return vals
}

// persistentIn returns the persistent parameters with the bound ones read
// from s instead of the bound Setup.
func (p *Params) persistentIn(s *Setup) map[int]float64 {
	bind := p.bind
	p.bind = s
	defer func() {
		p.bind = bind
	}()
	return p.Persistent()
}

// Restore sets parameters from a saved set, in increasing order.
func (p *Params) Restore(vals map[int]float64) error {
	nums := make([]int, 0, len(vals))
	for num := range vals {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	for _, num := range nums {
		if err := checkNum(num); err != nil {
			return err
		}
		if readOnlyNum(num) {
			continue
		}
		if err := p.setNum(num, vals[num]); err != nil {
			return err
		}
	}
	return nil
}

// The rest of this file binds the well known parameters to Setup.

func axisValue(pos Position, axis int) float64 {
	switch axis {
	case 0:
		return pos.X
	case 1:
		return pos.Y
	case 2:
		return pos.Z
	case 3:
		return pos.A
	case 4:
		return pos.B
	case 5:
		return pos.C
	}
	return 0
}

func setAxisValue(pos *Position, axis int, val float64) {
	switch axis {
	case 0:
		pos.X = val
	case 1:
		pos.Y = val
	case 2:
		pos.Z = val
	case 3:
		pos.A = val
	case 4:
		pos.B = val
	case 5:
		pos.C = val
	}
}

func (s *Setup) boundPosition(num int) (*Position, int, bool) {
	if num >= homeParam && num < homeParam+numAxes {
		return &s.Home, num - homeParam, true
	} else if num >= home2Param && num < home2Param+numAxes {
		return &s.Home2, num - home2Param, true
	} else if num >= g92Param && num < g92Param+numAxes {
		return &s.G92, num - g92Param, true
	} else if num >= coordSysParam && num < coordSysParam+coordSysParamStep*coordSysCount {
		n := num - coordSysParam
		if n%coordSysParamStep < numAxes {
			return &s.CoordSystems[n/coordSysParamStep], n % coordSysParamStep, true
		}
	}
	return nil, 0, false
}

func (s *Setup) boundParam(num int) (float64, bool) {
	switch num {
	case g92EnabledParam:
		return logicBool(s.G92Enabled), true
	case coordSysIndexParam:
		return float64(s.CoordSystem), true
	case toolParam:
		return float64(s.Tool), true
	case toolParam + 3:
		return s.LengthOffset, true
	case toolParam + 10:
		return s.tool(s.Tool).Diameter * s.toolScale(), true
	}
	if pos, axis, ok := s.boundPosition(num); ok {
		return axisValue(*pos, axis), true
	} else if num >= toolParam && num <= toolParamLast {
		return 0, true
	} else if num >= positionParam && num <= positionParamLast {
		return axisValue(s.Position, num-positionParam), true
	}
	return 0, false
}

func (s *Setup) setBoundParam(num int, val float64) (bool, error) {
	switch num {
	case g92EnabledParam:
		s.G92Enabled = val != 0
		return true, nil
	case coordSysIndexParam:
		n, err := paramNumber(val)
		if err != nil || n < 1 || n > coordSysCount {
			return true, errorf(ParameterError, "#%d: expected a coordinate system from 1 to 9: %s",
				num, formatNumber(val))
		}
		s.CoordSystem = n
		return true, nil
	}
	if pos, axis, ok := s.boundPosition(num); ok {
		setAxisValue(pos, axis, val)
		return true, nil
	}
	return false, nil
}

func (s *Setup) systemParam(name string) (float64, bool) {
	switch name {
	case "_x":
		return s.Position.X, true
	case "_y":
		return s.Position.Y, true
	case "_z":
		return s.Position.Z, true
	case "_a":
		return s.Position.A, true
	case "_b":
		return s.Position.B, true
	case "_c":
		return s.Position.C, true
	case "_metric":
		return logicBool(s.Units == Metric), true
	case "_imperial":
		return logicBool(s.Units == Imperial), true
	case "_absolute":
		return logicBool(s.Distance == Absolute), true
	case "_incremental":
		return logicBool(s.Distance == Incremental), true
	case "_feed":
		return s.Feed, true
	case "_rpm":
		return s.Speed, true
	case "_current_tool":
		return float64(s.Tool), true
	case "_selected_tool":
		return float64(s.Selected), true
	case "_coord_system":
		return float64(coordSystemCodes[s.CoordSystem-1]), true
	case "_motion_mode":
		return float64(s.Motion), true
	case "_plane":
		return float64(planeCodes[s.Plane]), true
	case "_spindle_on":
		return logicBool(s.Spindle != SpindleStopped), true
	case "_mist":
		return logicBool(s.Mist), true
	case "_flood":
		return logicBool(s.Flood), true
	case "_line":
		return float64(s.line), true
	}
	return 0, false
}
