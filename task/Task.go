// Package task implements a trajectory source backed by a live
// environment. A Task collects episodes with the currently installed
// policy, computes discounted returns-to-go, and serves batches of
// padded trajectory slices to a trainer.
package task

import (
	"fmt"

	"github.com/kfurrow/jointrl/trajectory"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

// Environment is the minimal surface a Task needs to interact with an
// environment.
type Environment interface {
	// Reset starts a new episode and returns the first observation.
	Reset() ([]float64, error)

	// Step applies an action and returns the next observation, the
	// reward, and whether the episode ended.
	Step(action []float64) (obs []float64, reward float64, done bool,
		err error)
}

// PolicyFn chooses the next action given the trajectory so far,
// returning the action and its log probability under the policy.
type PolicyFn func(traj trajectory.Trajectory) (action []float64,
	logProb float64, err error)

// Task collects trajectories from an environment and serves them as
// batch streams. Trajectories are grouped into collection epochs: each
// CollectEpoch call appends one epoch of fresh episodes, and batch
// streams sample from the epochs they were asked for.
type Task struct {
	env             Environment
	gamma           float64
	maxEpisodeSteps int
	policy          PolicyFn
	rng             *rand.Rand

	epochs [][]trajectory.Trajectory
}

// New returns a new Task. The initial policy is used until SetPolicy
// installs a trained one; see RandomDiscrete and RandomGaussian.
func New(env Environment, policy PolicyFn, gamma float64,
	maxEpisodeSteps int, seed uint64) (*Task, error) {
	if env == nil || policy == nil {
		return nil, fmt.Errorf("new: environment and policy are required")
	}
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("new: gamma must be in [0, 1], got %v",
			gamma)
	}
	if maxEpisodeSteps < 1 {
		return nil, fmt.Errorf("new: max episode steps must be "+
			"positive, got %v", maxEpisodeSteps)
	}

	return &Task{
		env:             env,
		gamma:           gamma,
		maxEpisodeSteps: maxEpisodeSteps,
		policy:          policy,
		rng:             rand.New(rand.NewSource(seed)),
	}, nil
}

// SetPolicy installs the policy used for subsequent collection.
func (t *Task) SetPolicy(policy PolicyFn) {
	t.policy = policy
}

// Epochs returns the number of collection epochs gathered so far.
func (t *Task) Epochs() int { return len(t.epochs) }

// CollectEpoch collects n fresh episodes with the current policy and
// appends them as a new collection epoch.
func (t *Task) CollectEpoch(n int) error {
	episodes := make([]trajectory.Trajectory, 0, n)
	for i := 0; i < n; i++ {
		traj, err := t.collect()
		if err != nil {
			return fmt.Errorf("collectEpoch: episode %v: %v", i, err)
		}
		episodes = append(episodes, traj)
	}
	t.epochs = append(t.epochs, episodes)
	return nil
}

// collect runs one episode and computes discounted returns-to-go.
func (t *Task) collect() (trajectory.Trajectory, error) {
	obs, err := t.env.Reset()
	if err != nil {
		return nil, fmt.Errorf("collect: %v", err)
	}

	var traj trajectory.Trajectory
	for len(traj) < t.maxEpisodeSteps {
		// The policy sees the pending observation as the most recent
		// timestep of the trajectory.
		cur := append(traj[:len(traj):len(traj)],
			trajectory.Step{Observation: obs})
		action, logProb, err := t.policy(cur)
		if err != nil {
			return nil, fmt.Errorf("collect: %v", err)
		}

		next, reward, done, err := t.env.Step(action)
		if err != nil {
			return nil, fmt.Errorf("collect: %v", err)
		}
		traj = append(traj, trajectory.Step{
			Observation: obs,
			Action:      action,
			LogProb:     logProb,
			Reward:      reward,
			Terminal:    done,
		})
		obs = next
		if done {
			break
		}
	}

	// Returns-to-go, computed backwards from the episode end.
	ret := 0.0
	for i := len(traj) - 1; i >= 0; i-- {
		ret = traj[i].Reward + t.gamma*ret
		traj[i].Return = ret
	}
	return traj, nil
}

// TrajectoryBatchStream returns a lazy stream of batches of padded
// trajectory slices. The epochs argument selects which collection
// epochs to sample from: nil samples all, and -1 denotes the most
// recent epoch. The first pull collects an initial epoch if none has
// been collected yet, blocking on the environment until it finishes.
func (t *Task) TrajectoryBatchStream(batchSize, maxSliceLength int,
	epochs []int) trajectory.Stream {
	return trajectory.StreamFunc(func() (*trajectory.Batch, error) {
		if len(t.epochs) == 0 {
			if err := t.CollectEpoch(batchSize); err != nil {
				return nil, fmt.Errorf("trajectoryBatchStream: %v", err)
			}
		}

		pool, err := t.pool(epochs)
		if err != nil {
			return nil, fmt.Errorf("trajectoryBatchStream: %v", err)
		}
		return t.sampleBatch(pool, batchSize, maxSliceLength)
	})
}

// pool gathers the trajectories of the selected collection epochs.
func (t *Task) pool(epochs []int) ([]trajectory.Trajectory, error) {
	if epochs == nil {
		var all []trajectory.Trajectory
		for _, epoch := range t.epochs {
			all = append(all, epoch...)
		}
		return all, nil
	}

	var pool []trajectory.Trajectory
	for _, i := range epochs {
		if i == -1 {
			i = len(t.epochs) - 1
		}
		if i < 0 || i >= len(t.epochs) {
			return nil, fmt.Errorf("pool: no such collection epoch %v", i)
		}
		pool = append(pool, t.epochs[i]...)
	}
	return pool, nil
}

// sampleBatch samples batchSize right-padded slices from the pool and
// packs them into aligned batch tensors.
func (t *Task) sampleBatch(pool []trajectory.Trajectory, batchSize,
	maxSliceLength int) (*trajectory.Batch, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("sampleBatch: no trajectories to sample")
	}

	features := len(pool[0][0].Observation)
	actionDims := len(pool[0][0].Action)

	obs := make([]float64, 0, batchSize*maxSliceLength*features)
	returns := make([]float64, 0, batchSize*maxSliceLength)
	actions := make([]float64, 0, batchSize*maxSliceLength*actionDims)
	logProbs := make([]float64, 0, batchSize*maxSliceLength)
	mask := make([]float64, 0, batchSize*maxSliceLength)

	for i := 0; i < batchSize; i++ {
		traj := pool[t.rng.Intn(len(pool))]
		start := t.rng.Intn(len(traj))
		slice := traj[start:]
		if len(slice) > maxSliceLength {
			slice = slice[:maxSliceLength]
		}

		for _, step := range slice {
			obs = append(obs, step.Observation...)
			returns = append(returns, step.Return)
			actions = append(actions, step.Action...)
			logProbs = append(logProbs, step.LogProb)
			mask = append(mask, 1)
		}
		for j := len(slice); j < maxSliceLength; j++ {
			obs = append(obs, make([]float64, features)...)
			returns = append(returns, 0)
			actions = append(actions, make([]float64, actionDims)...)
			logProbs = append(logProbs, 0)
			mask = append(mask, 0)
		}
	}

	actionShape := []int{batchSize, maxSliceLength}
	if actionDims > 1 {
		actionShape = append(actionShape, actionDims)
	}

	return &trajectory.Batch{
		Observations: tensor.NewDense(tensor.Float64,
			[]int{batchSize, maxSliceLength, features},
			tensor.WithBacking(obs)),
		Returns: tensor.NewDense(tensor.Float64,
			[]int{batchSize, maxSliceLength},
			tensor.WithBacking(returns)),
		Actions: tensor.NewDense(tensor.Float64, actionShape,
			tensor.WithBacking(actions)),
		LogProbs: tensor.NewDense(tensor.Float64,
			[]int{batchSize, maxSliceLength},
			tensor.WithBacking(logProbs)),
		Mask: tensor.NewDense(tensor.Float64,
			[]int{batchSize, maxSliceLength},
			tensor.WithBacking(mask)),
	}, nil
}
