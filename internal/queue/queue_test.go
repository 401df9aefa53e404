package queue_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/chronomq/tapmq/internal/queue"
)

var _ = Describe("Test queue", func() {
	defer GinkgoRecover()

	It("pops items in enqueue order", func() {
		q := queue.New[int]()
		for i := 0; i < 100; i++ {
			Expect(q.Enqueue(i)).To(BeNil())
		}
		Expect(q.Len()).To(Equal(100))

		for i := 0; i < 100; i++ {
			v, ok := q.Dequeue()
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(i))
		}
		_, ok := q.Dequeue()
		Expect(ok).To(BeFalse())
		Expect(q.Len()).To(Equal(0))
	})

	It("keeps order across interleaved enqueues and dequeues", func() {
		// Push enough through a small resident buffer to force in-place
		// compaction several times over
		q := queue.New[int]()
		next := 0
		want := 0
		for round := 0; round < 200; round++ {
			for i := 0; i < 13; i++ {
				Expect(q.Enqueue(next)).To(BeNil())
				next++
			}
			for i := 0; i < 11; i++ {
				v, ok := q.Dequeue()
				Expect(ok).To(BeTrue())
				Expect(v).To(Equal(want))
				want++
			}
		}
		for {
			v, ok := q.Dequeue()
			if !ok {
				break
			}
			Expect(v).To(Equal(want))
			want++
		}
		Expect(want).To(Equal(next))
	})

	It("refuses enqueues once closed but drains the buffer", func() {
		q := queue.New[string]()
		Expect(q.Enqueue("a")).To(BeNil())
		Expect(q.Enqueue("b")).To(BeNil())

		q.Close()
		Expect(q.Closed()).To(BeTrue())
		Expect(q.Enqueue("c")).To(Equal(queue.ErrClosed))

		v, ok := q.Dequeue()
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("a"))
		v, err := q.DequeueWait(context.Background())
		Expect(err).To(BeNil())
		Expect(v).To(Equal("b"))

		_, err = q.DequeueWait(context.Background())
		Expect(err).To(Equal(queue.ErrClosed))
	})

	It("close is idempotent", func() {
		q := queue.New[int]()
		q.Close()
		q.Close()
		Expect(q.Closed()).To(BeTrue())
	})

	It("wakes a suspended consumer on enqueue", func(done Done) {
		defer close(done)
		q := queue.New[int]()

		got := make(chan int)
		go func() {
			defer GinkgoRecover()
			v, err := q.DequeueWait(context.Background())
			Expect(err).To(BeNil())
			got <- v
		}()

		Eventually(got).ShouldNot(Receive())
		Expect(q.Enqueue(42)).To(BeNil())
		Eventually(got).Should(Receive(Equal(42)))
	}, 2)

	It("wakes a suspended consumer on close", func(done Done) {
		defer close(done)
		q := queue.New[int]()

		errs := make(chan error)
		go func() {
			_, err := q.DequeueWait(context.Background())
			errs <- err
		}()

		Eventually(errs).ShouldNot(Receive())
		q.Close()
		Eventually(errs).Should(Receive(Equal(queue.ErrClosed)))
	}, 2)

	It("releases a suspended consumer when its context ends", func(done Done) {
		defer close(done)
		q := queue.New[int]()

		ctx, cancel := context.WithCancel(context.Background())
		errs := make(chan error)
		go func() {
			_, err := q.DequeueWait(ctx)
			errs <- err
		}()

		Eventually(errs).ShouldNot(Receive())
		cancel()
		Eventually(errs).Should(Receive(Equal(context.Canceled)))

		// The queue stays usable for fresh consumers
		Expect(q.Enqueue(7)).To(BeNil())
		v, err := q.DequeueWait(context.Background())
		Expect(err).To(BeNil())
		Expect(v).To(Equal(7))
	}, 2)

	It("accepts concurrent producers without losing items", func(done Done) {
		defer close(done)
		q := queue.New[int]()

		const producers = 8
		const perProducer = 500

		wg := &sync.WaitGroup{}
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					Expect(q.Enqueue(i)).To(BeNil())
				}
			}()
		}
		wg.Wait()
		q.Close()

		count := 0
		for {
			_, err := q.DequeueWait(context.Background())
			if err != nil {
				Expect(err).To(Equal(queue.ErrClosed))
				break
			}
			count++
		}
		Expect(count).To(Equal(producers * perProducer))
	}, 10)
})
