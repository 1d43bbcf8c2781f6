// Package trainer drives one training run of the ship classifier: it wires
// the data module, a model, an experiment logger and lifecycle observers
// into a fit / evaluate sequence configured by an immutable Config.
//
// The model and the optimisation loop are collaborators behind the Model
// and Fitter interfaces. Loop is the reference Fitter: plain mini-batch SGD
// with a validation pass after every epoch.
package trainer
