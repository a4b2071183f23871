package tube

import "fmt"

// CandidateArtifact is the serializable form of one retained candidate.
type CandidateArtifact struct {
	Features  []string  `json:"features"`
	Score     float64   `json:"score"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// Artifact is the serializable form of a trained tube model: everything a
// host application needs to persist and reload the fit.
type Artifact struct {
	FitID       string                         `json:"fit_id"`
	Variables   []string                       `json:"variables"`
	Factors     []string                       `json:"factors"`
	Params      Params                         `json:"params"`
	TotalRows   int                            `json:"total_rows"`
	Ensembles   map[string][]CandidateArtifact `json:"ensembles"`
	Calibration map[string]Calibration         `json:"calibration"`
}

// Artifact exports the trained model. It fails when an ensemble holds a
// regressor other than LinearRegression, since only its coefficients have a
// defined serial form.
func (t *Tube) Artifact() (*Artifact, error) {
	a := &Artifact{
		FitID:       t.fitID,
		Variables:   append([]string(nil), t.variables...),
		Factors:     append([]string(nil), t.factors...),
		Params:      t.fitParams,
		TotalRows:   t.totalRows,
		Ensembles:   make(map[string][]CandidateArtifact, len(t.ensembles)),
		Calibration: make(map[string]Calibration, len(t.calib)),
	}
	for v, ens := range t.ensembles {
		out := make([]CandidateArtifact, 0, len(ens))
		for _, cand := range ens {
			lin, ok := cand.Model.(*LinearRegression)
			if !ok {
				return nil, fmt.Errorf("cannot serialize model of type %T for target %s", cand.Model, v)
			}
			out = append(out, CandidateArtifact{
				Features:  append([]string(nil), cand.Features...),
				Score:     cand.Score,
				Coef:      append([]float64(nil), lin.Coef...),
				Intercept: lin.Intercept,
			})
		}
		a.Ensembles[v] = out
	}
	for v, c := range t.calib {
		a.Calibration[v] = c
	}
	return a, nil
}

// Restore loads a previously exported artifact into the tube, replacing any
// trained state. The bound collection is unchanged.
func (t *Tube) Restore(a *Artifact) {
	t.fitID = a.FitID
	t.variables = dedupe(a.Variables)
	t.factors = dedupe(a.Factors)
	t.fitParams = a.Params
	t.totalRows = a.TotalRows
	t.ensembles = make(map[string][]Candidate, len(a.Ensembles))
	for v, ens := range a.Ensembles {
		out := make([]Candidate, 0, len(ens))
		for _, ca := range ens {
			out = append(out, Candidate{
				Model: &LinearRegression{
					Coef:      append([]float64(nil), ca.Coef...),
					Intercept: ca.Intercept,
				},
				Features: append([]string(nil), ca.Features...),
				Score:    ca.Score,
			})
		}
		t.ensembles[v] = out
	}
	t.calib = make(map[string]Calibration, len(a.Calibration))
	for v, c := range a.Calibration {
		t.calib[v] = c
	}
}
