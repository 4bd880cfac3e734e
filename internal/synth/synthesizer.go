// Package synth generates plausible substitute time series whose pairwise
// Pearson correlations match a models.CorrelationSpec. Mixing is closed
// form: a Cholesky factor of the target matrix loads orthonormal latent
// factors, so only the smoothing pass moves realised correlations, and a
// bounded number of re-mixes corrects for that.
package synth

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/stats"
)

// ErrInvalidSpec is returned for requests that cannot be satisfied by retry:
// unknown variables, zero length or infeasible correlation targets.
var ErrInvalidSpec = errors.New("invalid synthesis request")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
}

// Config controls generation.
type Config struct {
	Seed       uint64        `mapstructure:"seed" json:"seed"`
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
	Window     int           `mapstructure:"window" json:"window"`
	Degree     int           `mapstructure:"degree" json:"degree"`
	Step       time.Duration `mapstructure:"step" json:"step"`
}

// DefaultConfig returns a 7-sample quadratic smoother, five re-mixes and a
// daily step.
func DefaultConfig() Config {
	return Config{
		Seed:       20240601,
		MaxRetries: 5,
		Window:     7,
		Degree:     2,
		Step:       24 * time.Hour,
	}
}

// Synthesizer is immutable after construction and safe for concurrent use.
type Synthesizer struct {
	cfg      Config
	profiles map[string]Profile
	logger   *logrus.Logger
}

// New validates cfg and profiles. With no profiles, DefaultProfiles is used.
func New(cfg Config, logger *logrus.Logger, profiles ...Profile) (*Synthesizer, error) {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		return nil, invalidf("max retries must not be negative")
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if cfg.Degree == 0 {
		cfg.Degree = def.Degree
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.Window < 5 || cfg.Window%2 == 0 || cfg.Window <= cfg.Degree {
		return nil, invalidf("smoothing window must be odd, at least 5 and greater than degree %d, got %d", cfg.Degree, cfg.Window)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}

	byName := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if p.Period == 0 {
			p.Period = 365
		}
		byName[p.Name] = p
	}
	return &Synthesizer{cfg: cfg, profiles: byName, logger: logger}, nil
}

// Profile returns the profile for a variable.
func (s *Synthesizer) Profile(name string) (Profile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// Variables lists the known variable names, sorted.
func (s *Synthesizer) Variables() []string {
	out := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Generate produces length samples per variable starting at the beginning of
// the seasonal cycle.
func (s *Synthesizer) Generate(vars []string, spec models.CorrelationSpec, length int) (map[string]models.SyntheticSeries, error) {
	return s.GenerateFrom(time.Time{}, vars, spec, length)
}

// Point draws one correlated sample per variable for the given instant.
func (s *Synthesizer) Point(vars []string, spec models.CorrelationSpec, at time.Time) (map[string]float64, error) {
	series, err := s.GenerateFrom(at, vars, spec, 1)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(series))
	for name, ser := range series {
		out[name] = ser.Values[0]
	}
	return out, nil
}

// GenerateFrom produces length samples per variable whose seasonal phase
// starts at start's day of year. A zero start means day 0.
func (s *Synthesizer) GenerateFrom(start time.Time, vars []string, spec models.CorrelationSpec, length int) (map[string]models.SyntheticSeries, error) {
	if length <= 0 {
		return nil, invalidf("length must be positive, got %d", length)
	}
	names, profiles, err := s.resolve(vars)
	if err != nil {
		return nil, err
	}
	target, err := spec.Matrix(names)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	offset := 0.0
	if !start.IsZero() {
		offset = float64(start.YearDay() - 1)
	}
	seed := s.seedFor(names, length, offset)

	var run generation
	if length == 1 {
		run, err = s.point(profiles, target, offset, seed)
	} else {
		run, err = s.series(names, profiles, target, spec, offset, length, seed)
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.SyntheticSeries, len(names))
	for i, name := range names {
		out[name] = models.SyntheticSeries{
			Variable:     name,
			Start:        start,
			Step:         s.cfg.Step,
			Values:       run.values[i],
			Spec:         spec,
			Valid:        run.deviation[i] <= spec.Epsilon(),
			Attempts:     run.attempts,
			MaxDeviation: run.deviation[i],
		}
	}
	return out, nil
}

type generation struct {
	values    [][]float64
	deviation []float64 // per variable, over its tracked pairs
	attempts  int
}

func (g generation) worst() float64 {
	w := 0.0
	for _, d := range g.deviation {
		w = math.Max(w, d)
	}
	return w
}

func (s *Synthesizer) resolve(vars []string) ([]string, []Profile, error) {
	if len(vars) == 0 {
		return nil, nil, invalidf("at least one variable is required")
	}
	seen := make(map[string]struct{}, len(vars))
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		names = append(names, v)
	}
	sort.Strings(names)

	profiles := make([]Profile, len(names))
	for i, name := range names {
		p, ok := s.profiles[name]
		if !ok {
			return nil, nil, invalidf("unknown variable %q", name)
		}
		profiles[i] = p
	}
	return names, profiles, nil
}

func (s *Synthesizer) seedFor(names []string, length int, offset float64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(names, ",")))
	_, _ = h.Write([]byte("|" + strconv.Itoa(length) + "|" + strconv.FormatFloat(offset, 'f', -1, 64)))
	return s.cfg.Seed ^ h.Sum64()
}

// point draws a single joint sample: trend plus Cholesky-correlated noise.
func (s *Synthesizer) point(profiles []Profile, target [][]float64, offset float64, seed uint64) (generation, error) {
	l, err := stats.Cholesky(target)
	if err != nil {
		return generation{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	rng := rand.New(rand.NewPCG(seed, 1))

	n := len(profiles)
	g := make([]float64, n)
	for i := range g {
		g[i] = rng.NormFloat64()
	}

	values := make([][]float64, n)
	for i, p := range profiles {
		z := 0.0
		for k := 0; k <= i; k++ {
			z += l[i][k] * g[k]
		}
		values[i] = []float64{stats.Clamp(p.Trend(offset)+p.Spread*z, p.Min, p.Max)}
	}
	return generation{values: values, deviation: make([]float64, n), attempts: 1}, nil
}

// series runs the mix, smooth, validate loop and keeps the best attempt.
func (s *Synthesizer) series(names []string, profiles []Profile, target [][]float64, spec models.CorrelationSpec, offset float64, length int, seed uint64) (generation, error) {
	trends := make([][]float64, len(profiles))
	for i, p := range profiles {
		trends[i] = make([]float64, length)
		for t := range trends[i] {
			trends[i][t] = p.Trend(offset + float64(t))
		}
	}
	tracked := trackedPairs(names, spec)

	mixTarget := copyMatrix(target)
	var best generation
	bestScore := math.Inf(1)

	for attempt := 1; attempt <= s.cfg.MaxRetries+1; attempt++ {
		rng := rand.New(rand.NewPCG(seed, uint64(attempt)))
		values, err := s.mix(trends, profiles, mixTarget, rng)
		if err != nil {
			return generation{}, err
		}

		realized := correlationMatrix(values)
		run := generation{values: values, deviation: deviations(realized, target, tracked), attempts: attempt}
		if score := run.worst(); score < bestScore {
			best, bestScore = run, score
		}
		best.attempts = attempt
		if bestScore <= spec.Epsilon() {
			break
		}
		mixTarget = adjust(mixTarget, target, realized, tracked)
	}

	if bestScore > spec.Epsilon() {
		s.logger.WithFields(logrus.Fields{
			"component":     "synth",
			"variables":     names,
			"max_deviation": bestScore,
			"epsilon":       spec.Epsilon(),
			"attempts":      best.attempts,
		}).Warn("Synthetic series failed correlation validation")
	}
	return best, nil
}

// component pairs a raw vector with its image under the final smoother.
// The smoother is linear and preserves constants, so smoothing a mixture of
// raw components yields the same mixture of their smoothed images.
type component struct {
	raw, smooth []float64
}

func (s *Synthesizer) smooth(v []float64) ([]float64, error) {
	return stats.SavitzkyGolay(v, s.cfg.Window, s.cfg.Degree)
}

func (s *Synthesizer) component(raw []float64) (component, error) {
	sm, err := s.smooth(raw)
	if err != nil {
		return component{}, err
	}
	return component{raw: raw, smooth: sm}, nil
}

// mix builds one attempt: trend share plus loaded noise, then smoothing and
// range clamping. Trend directions and latent factors are unit and
// orthogonal after smoothing, so the smoothed mixture carries r exactly
// until clamping.
func (s *Synthesizer) mix(trends [][]float64, profiles []Profile, r [][]float64, rng *rand.Rand) ([][]float64, error) {
	n := len(trends)
	length := len(trends[0])
	scale := math.Sqrt(float64(length))
	constant := component{raw: constantUnit(length), smooth: constantUnit(length)}

	dirs := make([]*component, n) // unit centred smoothed trend directions, nil when flat
	smoothDirs := make([][]float64, n)
	means := make([]float64, n)
	share := make([]float64, n) // seasonal share of total std dev
	sd := make([]float64, n)
	for i, tr := range trends {
		means[i] = stats.Mean(tr)
		std := stats.StdDev(tr)
		sd[i] = math.Sqrt(std*std + profiles[i].Spread*profiles[i].Spread)
		if std <= 1e-12 {
			continue
		}
		d := make([]float64, length)
		for t := range tr {
			d[t] = (tr[t] - means[i]) / (std * scale)
		}
		c, err := s.component(d)
		if err != nil {
			return nil, err
		}
		if u, ok := unitComponent(orthogonalize([]component{constant}, c)); ok {
			dirs[i] = &u
			smoothDirs[i] = u.smooth
			share[i] = std / sd[i]
		}
	}

	a, l, err := loadFactors(smoothDirs, share, r, length)
	if err != nil {
		return nil, err
	}

	basis := []component{constant}
	if hasShare(a) {
		for _, d := range dirs {
			if d != nil {
				basis = appendOrthonormal(basis, *d)
			}
		}
	}
	factors, err := s.latentFactors(basis, n, length, rng)
	if err != nil {
		return nil, err
	}

	values := make([][]float64, n)
	for i := range values {
		b := math.Sqrt(math.Max(0, 1-a[i]*a[i]))
		x := make([]float64, length)
		for t := range x {
			v := 0.0
			if dirs[i] != nil {
				v += a[i] * dirs[i].raw[t]
			}
			e := 0.0
			for k := 0; k <= i; k++ {
				e += l[i][k] * factors[k].raw[t]
			}
			x[t] = means[i] + sd[i]*scale*(v+b*e)
		}

		smoothed, err := s.smooth(x)
		if err != nil {
			return nil, err
		}
		for t := range smoothed {
			smoothed[t] = stats.Clamp(smoothed[t], profiles[i].Min, profiles[i].Max)
		}
		values[i] = smoothed
	}
	return values, nil
}

// loadFactors picks the seasonal shares and the Cholesky factor of the
// residual correlation the latent noise must carry. Shares shrink toward
// zero until the residual is feasible; at zero the residual is r itself.
func loadFactors(dirs [][]float64, share []float64, r [][]float64, length int) ([]float64, [][]float64, error) {
	n := len(dirs)
	trendRank := 0
	for _, d := range dirs {
		if d != nil {
			trendRank++
		}
	}
	// Exact orthogonality needs room for the constant, the trends and n factors.
	factors := []float64{1, 0.5, 0.25, 0}
	if length < 1+trendRank+n {
		factors = []float64{0}
	}

	var lastErr error
	for _, f := range factors {
		a := make([]float64, n)
		for i := range a {
			a[i] = f * share[i]
		}
		residual := stats.Identity(n)
		for i := 0; i < n; i++ {
			for j := 0; j < i; j++ {
				c := 0.0
				if dirs[i] != nil && dirs[j] != nil {
					c = stats.Dot(dirs[i], dirs[j])
				}
				bi := math.Sqrt(1 - a[i]*a[i])
				bj := math.Sqrt(1 - a[j]*a[j])
				v := (r[i][j] - a[i]*a[j]*c) / (bi * bj)
				residual[i][j], residual[j][i] = v, v
			}
		}
		l, err := stats.Cholesky(residual)
		if err == nil {
			return a, l, nil
		}
		lastErr = err
	}
	return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSpec, lastErr)
}

// latentFactors draws n noise components whose smoothed images are
// orthonormal to basis and to each other. Series too short for that fall
// back to factors that are only centred.
func (s *Synthesizer) latentFactors(basis []component, n, length int, rng *rand.Rand) ([]component, error) {
	exact := length >= len(basis)+n
	preWindow := s.preSmoothingWindow(length)
	centre := basis[:1]

	factors := make([]component, n)
	for k := 0; k < n; k++ {
		for try := 0; ; try++ {
			z := make([]float64, length)
			for t := range z {
				z[t] = rng.NormFloat64()
			}
			// Pre-smoothing shapes the noise spectrum on long series.
			// A degenerate draw is retried on raw noise.
			if preWindow > 0 && try == 0 {
				for pass := 0; pass < 2; pass++ {
					if sm, err := stats.SavitzkyGolay(z, preWindow, s.cfg.Degree); err == nil {
						z = sm
					}
				}
			}
			c, err := s.component(z)
			if err != nil {
				return nil, err
			}

			if !exact {
				u, ok := unitComponent(orthogonalize(centre, c))
				if !ok {
					u = zeroComponent(length)
				}
				factors[k] = u
				break
			}
			if u, ok := unitComponent(orthogonalize(basis, c)); ok {
				factors[k] = u
				basis = append(basis, u)
				break
			}
			if try >= 8 {
				factors[k] = zeroComponent(length)
				break
			}
		}
	}
	return factors, nil
}

// preSmoothingWindow returns the noise pre-smoother for long series, or 0
// when the series is too short to spare the bandwidth.
func (s *Synthesizer) preSmoothingWindow(length int) int {
	wide := 2*s.cfg.Window + 1
	if length >= 4*wide {
		return wide
	}
	return 0
}

// adjust moves tracked mixing targets by the realised error, then pulls the
// matrix back toward the declared targets until it is feasible again.
func adjust(mix, target, realized [][]float64, tracked [][2]int) [][]float64 {
	next := copyMatrix(mix)
	for _, p := range tracked {
		i, j := p[0], p[1]
		v := stats.Clamp(mix[i][j]+target[i][j]-realized[i][j], -1, 1)
		next[i][j], next[j][i] = v, v
	}
	for t := 1.0; t > 1e-3; t /= 2 {
		candidate := blend(target, next, t)
		if stats.IsPositiveSemidefinite(candidate) {
			return candidate
		}
	}
	return copyMatrix(target)
}

func blend(a, b [][]float64, t float64) [][]float64 {
	out := copyMatrix(a)
	for i := range out {
		for j := range out[i] {
			out[i][j] = a[i][j] + t*(b[i][j]-a[i][j])
		}
	}
	return out
}

func trackedPairs(names []string, spec models.CorrelationSpec) [][2]int {
	var pairs [][2]int
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			if _, ok := spec.Target(names[i], names[j]); ok {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

func deviations(realized, target [][]float64, tracked [][2]int) []float64 {
	dev := make([]float64, len(target))
	for _, p := range tracked {
		d := math.Abs(realized[p[0]][p[1]] - target[p[0]][p[1]])
		dev[p[0]] = math.Max(dev[p[0]], d)
		dev[p[1]] = math.Max(dev[p[1]], d)
	}
	return dev
}

func correlationMatrix(values [][]float64) [][]float64 {
	m := stats.Identity(len(values))
	for i := range values {
		for j := 0; j < i; j++ {
			c := stats.Pearson(values[i], values[j])
			m[i][j], m[j][i] = c, c
		}
	}
	return m
}

// orthogonalize removes the smoothed-space projection of c onto basis,
// applying the same combination to the raw side.
func orthogonalize(basis []component, c component) component {
	out := component{
		raw:    append([]float64(nil), c.raw...),
		smooth: append([]float64(nil), c.smooth...),
	}
	// Two passes of modified Gram-Schmidt for numerical stability.
	for pass := 0; pass < 2; pass++ {
		for _, q := range basis {
			d := stats.Dot(q.smooth, out.smooth)
			for t := range out.smooth {
				out.raw[t] -= d * q.raw[t]
				out.smooth[t] -= d * q.smooth[t]
			}
		}
	}
	return out
}

// unitComponent scales c so its smoothed image has unit norm.
func unitComponent(c component) (component, bool) {
	norm := stats.Norm(c.smooth)
	if norm < 1e-9 {
		return component{}, false
	}
	for t := range c.smooth {
		c.raw[t] /= norm
		c.smooth[t] /= norm
	}
	return c, true
}

func appendOrthonormal(basis []component, c component) []component {
	if u, ok := unitComponent(orthogonalize(basis, c)); ok {
		return append(basis, u)
	}
	return basis
}

func zeroComponent(length int) component {
	return component{raw: make([]float64, length), smooth: make([]float64, length)}
}

func constantUnit(length int) []float64 {
	v := make([]float64, length)
	c := 1 / math.Sqrt(float64(length))
	for t := range v {
		v[t] = c
	}
	return v
}

func hasShare(a []float64) bool {
	for _, v := range a {
		if v > 0 {
			return true
		}
	}
	return false
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}
